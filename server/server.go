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

package server

import (
	"context"

	"github.com/cubefs/chunkfs/errors"
	"github.com/cubefs/chunkfs/proto"
)

const (
	RoleMds    = "mds"
	RoleSrm    = "srm"
	RoleNode   = "node"
	RoleSingle = "single"
)

type Config struct {
	Roles []string `json:"roles"`

	MdsConfig  MdsConfig  `json:"mds_config"`
	SrmConfig  SrmConfig  `json:"srm_config"`
	NodeConfig NodeConfig `json:"node_config"`
}

// Server hosts whichever tiers the configured roles enable. A single
// process may run all three; cross-tier calls short-circuit in process
// when both ends are local.
type Server struct {
	mds  *mdsServer
	srm  *srmServer
	node *nodeServer
}

func NewServer(ctx context.Context, cfg *Config) (*Server, error) {
	roles := make(map[string]bool)
	for _, r := range cfg.Roles {
		if r == RoleSingle {
			roles[RoleMds] = true
			roles[RoleSrm] = true
			roles[RoleNode] = true
			continue
		}
		roles[r] = true
	}
	if len(roles) == 0 {
		return nil, errors.ErrInvalidArgument
	}

	s := &Server{}
	var err error
	if roles[RoleMds] {
		if s.mds, err = newMdsServer(ctx, &cfg.MdsConfig); err != nil {
			return nil, err
		}
	}
	if roles[RoleSrm] {
		if s.srm, err = newSrmServer(ctx, &cfg.SrmConfig, s.mds); err != nil {
			s.Close()
			return nil, err
		}
	}
	if roles[RoleNode] {
		if s.node, err = newNodeServer(ctx, &cfg.NodeConfig, s.srm); err != nil {
			s.Close()
			return nil, err
		}
	}
	return s, nil
}

// Start launches the background loops of every enabled tier. The rpc and
// http listeners are started separately by their owners.
func (s *Server) Start() {
	if s.mds != nil {
		s.mds.start()
	}
	if s.srm != nil {
		s.srm.start()
	}
	if s.node != nil {
		s.node.start()
	}
}

func (s *Server) Close() {
	if s.node != nil {
		s.node.close()
		s.node = nil
	}
	if s.srm != nil {
		s.srm.close()
		s.srm = nil
	}
	if s.mds != nil {
		s.mds.close()
		s.mds = nil
	}
}

type Stats struct {
	Mds  *MdsStats        `json:"mds,omitempty"`
	Srm  *SrmStats        `json:"srm,omitempty"`
	Node []proto.DiskInfo `json:"node,omitempty"`
}

func (s *Server) Stats() Stats {
	st := Stats{}
	if s.mds != nil {
		st.Mds = s.mds.stats()
	}
	if s.srm != nil {
		st.Srm = s.srm.stats()
	}
	if s.node != nil {
		st.Node = s.node.disks.Stats()
	}
	return st
}
