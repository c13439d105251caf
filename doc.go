/*
 *
 * Copyright 2023 CubeFS authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 */

/*

# ChunkFS: a three-tier chunk file service

## Data Model

* Inode, a fixed 512-byte slot holding identity, location, packed size,
  timestamps, name, digest and the block segments of one file.

* Namespace, the path tree. Directory pages map names to inode numbers;
  a path index accelerates absolute lookups.

* Volume, a block container registered with the metadata tier. File
  ranges are carved from volumes as contiguous block segments.

* Chunk, the unit of data placement on a storage node, sharded across
  data roots and tracked by an append-only manifest.

## Architecture

A chunkfs cluster has three server roles:

* MDS - the metadata tier: inode table, namespace, volume allocation
  and the cold-inode collector.

* SRM - the resource tier: node registry, health sweeping, chunk I/O
  dispatch and the virtual-node capacity ledger.

* Storage node - the data tier: chunk manifest, fd-cached positional
  I/O and the agent keeping the node registered.

Every server provides endpoints via gRPC plus an HTTP sidecar for
status and profiling. The three tiers can also share one process.

## Building Blocks

* gRPC
* Rocksdb
* Prometheus

*/

package chunkfs
