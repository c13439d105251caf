// Copyright 2023 The CubeFS Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

package proto

import (
	"encoding/binary"
	"fmt"
	"time"
)

const (
	NamespaceIDSize = 32
	MaxNameLen      = 255
	MaxDigestLen    = 255

	maxSizeValue = (1 << 14) - 1
	maxNodeIndex = (1 << 14) - 1

	segmentWidth = 24
)

type NodeClass uint8

const (
	NodeClassSSD NodeClass = iota
	NodeClassHDD
	NodeClassMix
	// class 3 is reserved and rejected on decode
)

func (c NodeClass) Valid() bool {
	return c <= NodeClassMix
}

type FileType uint8

const (
	FileTypeUnknown FileType = iota
	FileTypeRegular
	FileTypeDirectory
	FileTypeSymlink
)

type SizeUnit uint8

const (
	SizeUnitB SizeUnit = iota
	SizeUnitKB
	SizeUnitMB
	SizeUnitGB
)

// BlockSegment maps a contiguous logical file range onto device blocks.
type BlockSegment struct {
	LogicalStart uint64 `json:"logical_start"`
	StartBlock   uint64 `json:"start_block"`
	BlockCount   uint64 `json:"block_count"`
}

// Timestamp is the inode time at minute resolution. Pack fills a whole
// 32-bit word: years counted from 2000 in 8 bits, then month, day, hour
// and minute in 6 bits each. It is not a 28-bit encoding.
type Timestamp struct {
	Year   uint8 `json:"year"`
	Month  uint8 `json:"month"`
	Day    uint8 `json:"day"`
	Hour   uint8 `json:"hour"`
	Minute uint8 `json:"minute"`
}

func NewTimestamp(t time.Time) Timestamp {
	year := t.Year() - 2000
	if year < 0 {
		year = 0
	}
	if year > 255 {
		year = 255
	}
	return Timestamp{
		Year:   uint8(year),
		Month:  uint8(t.Month()),
		Day:    uint8(t.Day()),
		Hour:   uint8(t.Hour()),
		Minute: uint8(t.Minute()),
	}
}

func (ts Timestamp) Pack() uint32 {
	return uint32(ts.Year) |
		uint32(ts.Month&0x3f)<<8 |
		uint32(ts.Day&0x3f)<<14 |
		uint32(ts.Hour&0x3f)<<20 |
		uint32(ts.Minute&0x3f)<<26
}

func UnpackTimestamp(v uint32) Timestamp {
	return Timestamp{
		Year:   uint8(v),
		Month:  uint8(v >> 8 & 0x3f),
		Day:    uint8(v >> 14 & 0x3f),
		Hour:   uint8(v >> 20 & 0x3f),
		Minute: uint8(v >> 26 & 0x3f),
	}
}

// SortKey orders timestamps chronologically; seconds are intentionally
// discarded by the on-disk format.
func (ts Timestamp) SortKey() uint32 {
	return uint32(ts.Year)<<24 |
		uint32(ts.Month&0x3f)<<18 |
		uint32(ts.Day&0x3f)<<12 |
		uint32(ts.Hour&0x3f)<<6 |
		uint32(ts.Minute&0x3f)
}

// Inode is the semantic view of one 512-byte slot. The serialized form is
// little-endian with the field order fixed by Marshal; it must round-trip
// exactly and fit in SlotSize.
type Inode struct {
	Ino         uint64         `json:"ino"`
	NodeIndex   uint16         `json:"node_index"`
	Class       NodeClass      `json:"class"`
	BlockID     uint16         `json:"block_id"`
	FileType    FileType       `json:"file_type"`
	Perm        uint16         `json:"perm"`
	SizeUnit    SizeUnit       `json:"size_unit"`
	SizeValue   uint16         `json:"size_value"`
	NamespaceID string         `json:"namespace_id"`
	FMTime      Timestamp      `json:"fm_time"`
	FATime      Timestamp      `json:"fa_time"`
	IMTime      Timestamp      `json:"im_time"`
	FCTime      Timestamp      `json:"fc_time"`
	Name        string         `json:"name"`
	Digest      []byte         `json:"digest,omitempty"`
	VolumeID    string         `json:"volume_id,omitempty"`
	Segments    []BlockSegment `json:"segments,omitempty"`
}

// SetLocation packs (index, class) into the 16-bit location field.
func (i *Inode) SetLocation(index uint16, class NodeClass) error {
	if index > maxNodeIndex {
		return fmt.Errorf("node index %d out of range", index)
	}
	if !class.Valid() {
		return fmt.Errorf("node class %d is reserved", class)
	}
	i.NodeIndex = index
	i.Class = class
	i.IMTime = NewTimestamp(time.Now())
	return nil
}

func (i *Inode) Location() uint16 {
	return i.NodeIndex | uint16(i.Class)<<14
}

// SetNamespaceID normalizes to exactly NamespaceIDSize bytes: longer input
// keeps the last 32 bytes, shorter input is left-padded with '0'.
func (i *Inode) SetNamespaceID(ns string) {
	if len(ns) > NamespaceIDSize {
		ns = ns[len(ns)-NamespaceIDSize:]
	} else if len(ns) < NamespaceIDSize {
		pad := make([]byte, NamespaceIDSize-len(ns))
		for j := range pad {
			pad[j] = '0'
		}
		ns = string(pad) + ns
	}
	i.NamespaceID = ns
	i.IMTime = NewTimestamp(time.Now())
}

// SizeBytes decodes the packed (unit, value) size field.
func (i *Inode) SizeBytes() uint64 {
	mul := uint64(1)
	for u := SizeUnit(0); u < i.SizeUnit; u++ {
		mul *= 1024
	}
	return uint64(i.SizeValue) * mul
}

// SetSizeBytes encodes n with the smallest unit whose 14-bit value fits,
// rounding up.
func (i *Inode) SetSizeBytes(n uint64) {
	unit := SizeUnitB
	value := n
	for unit < SizeUnitGB && value > maxSizeValue {
		value = (value + 1023) / 1024
		unit++
	}
	if value > maxSizeValue {
		value = maxSizeValue
	}
	i.SizeUnit = unit
	i.SizeValue = uint16(value)
	now := NewTimestamp(time.Now())
	i.FMTime = now
	i.IMTime = now
}

func (i *Inode) SetName(name string) error {
	if len(name) > MaxNameLen {
		return fmt.Errorf("name length %d exceeds %d", len(name), MaxNameLen)
	}
	i.Name = name
	i.IMTime = NewTimestamp(time.Now())
	return nil
}

// ClearBlocks drops the segment list and zeroes the size field.
func (i *Inode) ClearBlocks() {
	i.Segments = i.Segments[:0]
	i.SizeUnit = SizeUnitB
	i.SizeValue = 0
	now := NewTimestamp(time.Now())
	i.FMTime = now
	i.FATime = now
	i.FCTime = now
	i.IMTime = now
}

func (i *Inode) IsDirectory() bool {
	return i.FileType == FileTypeDirectory
}

func (i *Inode) marshaledSize() int {
	return 2 + 2 + 1 + 1 + 2 + 2 + 8 + NamespaceIDSize + 4*4 +
		len(i.Name) + len(i.Digest) + 1 + len(i.VolumeID) + 4 +
		len(i.Segments)*segmentWidth
}

func (i *Inode) Marshal() ([]byte, error) {
	if len(i.Name) > MaxNameLen {
		return nil, fmt.Errorf("name length %d exceeds %d", len(i.Name), MaxNameLen)
	}
	if len(i.Digest) > MaxDigestLen {
		return nil, fmt.Errorf("digest length %d exceeds %d", len(i.Digest), MaxDigestLen)
	}
	if len(i.VolumeID) > MaxNameLen {
		return nil, fmt.Errorf("volume id length %d exceeds %d", len(i.VolumeID), MaxNameLen)
	}
	if !i.Class.Valid() {
		return nil, fmt.Errorf("node class %d is reserved", i.Class)
	}
	size := i.marshaledSize()
	if size > SlotSize {
		return nil, fmt.Errorf("inode %d serializes to %d bytes, slot is %d", i.Ino, size, SlotSize)
	}

	buf := make([]byte, size)
	off := 0
	binary.LittleEndian.PutUint16(buf[off:], i.Location())
	off += 2
	binary.LittleEndian.PutUint16(buf[off:], i.BlockID)
	off += 2
	buf[off] = uint8(len(i.Name))
	off++
	buf[off] = uint8(len(i.Digest))
	off++
	binary.LittleEndian.PutUint16(buf[off:], uint16(i.FileType)&0xf|i.Perm<<4)
	off += 2
	binary.LittleEndian.PutUint16(buf[off:], uint16(i.SizeUnit)&0x3|i.SizeValue<<2)
	off += 2
	binary.LittleEndian.PutUint64(buf[off:], i.Ino)
	off += 8

	ns := i.NamespaceID
	if len(ns) != NamespaceIDSize {
		tmp := *i
		tmp.SetNamespaceID(ns)
		ns = tmp.NamespaceID
	}
	copy(buf[off:], ns)
	off += NamespaceIDSize

	for _, ts := range []Timestamp{i.FMTime, i.FATime, i.IMTime, i.FCTime} {
		binary.LittleEndian.PutUint32(buf[off:], ts.Pack())
		off += 4
	}

	copy(buf[off:], i.Name)
	off += len(i.Name)
	copy(buf[off:], i.Digest)
	off += len(i.Digest)
	buf[off] = uint8(len(i.VolumeID))
	off++
	copy(buf[off:], i.VolumeID)
	off += len(i.VolumeID)
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(i.Segments)))
	off += 4
	for _, seg := range i.Segments {
		binary.LittleEndian.PutUint64(buf[off:], seg.LogicalStart)
		binary.LittleEndian.PutUint64(buf[off+8:], seg.StartBlock)
		binary.LittleEndian.PutUint64(buf[off+16:], seg.BlockCount)
		off += segmentWidth
	}

	return buf, nil
}

func (i *Inode) Unmarshal(data []byte) error {
	const fixed = 2 + 2 + 1 + 1 + 2 + 2 + 8 + NamespaceIDSize + 16
	if len(data) < fixed {
		return fmt.Errorf("inode buffer too short: %d", len(data))
	}
	off := 0
	location := binary.LittleEndian.Uint16(data[off:])
	off += 2
	class := NodeClass(location >> 14)
	if !class.Valid() {
		return fmt.Errorf("node class %d is reserved", class)
	}
	i.NodeIndex = location & maxNodeIndex
	i.Class = class
	i.BlockID = binary.LittleEndian.Uint16(data[off:])
	off += 2
	nameLen := int(data[off])
	off++
	digestLen := int(data[off])
	off++
	mode := binary.LittleEndian.Uint16(data[off:])
	off += 2
	i.FileType = FileType(mode & 0xf)
	i.Perm = mode >> 4
	sizeField := binary.LittleEndian.Uint16(data[off:])
	off += 2
	i.SizeUnit = SizeUnit(sizeField & 0x3)
	i.SizeValue = sizeField >> 2
	i.Ino = binary.LittleEndian.Uint64(data[off:])
	off += 8
	i.NamespaceID = string(data[off : off+NamespaceIDSize])
	off += NamespaceIDSize

	times := make([]Timestamp, 4)
	for j := range times {
		times[j] = UnpackTimestamp(binary.LittleEndian.Uint32(data[off:]))
		off += 4
	}
	i.FMTime, i.FATime, i.IMTime, i.FCTime = times[0], times[1], times[2], times[3]

	if len(data) < off+nameLen+digestLen+1 {
		return fmt.Errorf("inode buffer truncated at name/digest")
	}
	i.Name = string(data[off : off+nameLen])
	off += nameLen
	if digestLen > 0 {
		i.Digest = append(i.Digest[:0], data[off:off+digestLen]...)
	} else {
		i.Digest = nil
	}
	off += digestLen
	volLen := int(data[off])
	off++
	if len(data) < off+volLen+4 {
		return fmt.Errorf("inode buffer truncated at volume id")
	}
	i.VolumeID = string(data[off : off+volLen])
	off += volLen
	segCount := int(binary.LittleEndian.Uint32(data[off:]))
	off += 4
	if len(data) < off+segCount*segmentWidth {
		return fmt.Errorf("inode buffer truncated at segments")
	}
	i.Segments = i.Segments[:0]
	for j := 0; j < segCount; j++ {
		i.Segments = append(i.Segments, BlockSegment{
			LogicalStart: binary.LittleEndian.Uint64(data[off:]),
			StartBlock:   binary.LittleEndian.Uint64(data[off+8:]),
			BlockCount:   binary.LittleEndian.Uint64(data[off+16:]),
		})
		off += segmentWidth
	}
	return nil
}
