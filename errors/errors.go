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

package errors

import (
	"errors"
	"syscall"

	"github.com/cubefs/chunkfs/proto"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")

	ErrInoDoesNotExist  = errors.New("ino does not exist")
	ErrNotDirectory     = errors.New("not a directory")
	ErrDirectoryNotEmpty = errors.New("directory not empty")
	ErrDuplicateEntry   = errors.New("duplicate directory entry")
	ErrEntryNotFound    = errors.New("directory entry not found")

	ErrNoFreeInode   = errors.New("no free inode slot")
	ErrShortRead     = errors.New("short read on inode slot")
	ErrSlotOverflow  = errors.New("inode does not fit in slot")
	ErrStoreLocked   = errors.New("store directory is locked by another process")

	ErrNodeNotFound    = errors.New("node not found")
	ErrMissingNodeID   = errors.New("missing node_id")
	ErrInvalidArgument = errors.New("invalid argument")

	ErrNoVolumeAvailable = errors.New("no volume available")

	ErrDiskNotReady = errors.New("disk not ready")
)

// CodeFromErrno normalizes system errno values into the stable status set.
func CodeFromErrno(errno syscall.Errno) proto.StatusCode {
	switch errno {
	case 0:
		return proto.StatusSuccess
	case syscall.EINVAL:
		return proto.StatusInvalidArgument
	case syscall.ENOENT:
		return proto.StatusNodeNotFound
	case syscall.EIO:
		return proto.StatusIoError
	case syscall.ETIMEDOUT, syscall.ECONNREFUSED, syscall.ENETUNREACH:
		return proto.StatusNetworkError
	default:
		return proto.StatusUnknownError
	}
}

// NormalizeCode passes a code through when it already names a known kind,
// otherwise treats it as an errno.
func NormalizeCode(code int32) proto.StatusCode {
	if code >= int32(proto.StatusSuccess) && code <= int32(proto.StatusVirtualNodeError) {
		return proto.StatusCode(code)
	}
	return CodeFromErrno(syscall.Errno(code))
}

// CodeFromError maps package sentinels and wrapped errnos onto the status
// set; nil maps to Success.
func CodeFromError(err error) proto.StatusCode {
	if err == nil {
		return proto.StatusSuccess
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return CodeFromErrno(errno)
	}
	switch {
	case errors.Is(err, ErrInvalidArgument), errors.Is(err, ErrMissingNodeID),
		errors.Is(err, ErrAlreadyExists), errors.Is(err, ErrDuplicateEntry),
		errors.Is(err, ErrDirectoryNotEmpty), errors.Is(err, ErrNotDirectory),
		errors.Is(err, ErrSlotOverflow):
		return proto.StatusInvalidArgument
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrNodeNotFound),
		errors.Is(err, ErrInoDoesNotExist), errors.Is(err, ErrEntryNotFound):
		return proto.StatusNodeNotFound
	case errors.Is(err, ErrShortRead), errors.Is(err, ErrDiskNotReady),
		errors.Is(err, ErrStoreLocked):
		return proto.StatusIoError
	default:
		return proto.StatusUnknownError
	}
}

// StatusFromError fills a Status from an error, nil meaning success.
func StatusFromError(err error) proto.Status {
	st := proto.Status{}
	if err == nil {
		st.Set(proto.StatusSuccess, "")
		return st
	}
	st.Set(CodeFromError(err), err.Error())
	return st
}

func Is(err, target error) bool { return errors.Is(err, target) }

func New(text string) error { return errors.New(text) }
