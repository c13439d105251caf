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

package limiter

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCountLimit(t *testing.T) {
	l := NewLimiter(LimitConfig{ReadConcurrency: 1, WriteConcurrency: 1})

	require.NoError(t, l.AcquireRead())
	require.ErrorIs(t, l.AcquireRead(), ErrLimitExceeded)
	require.Equal(t, 1, l.Status().ReadRunning)

	l.SetReadConcurrency(2)
	require.NoError(t, l.AcquireRead())
	l.ReleaseRead()
	l.ReleaseRead()
	require.Equal(t, 0, l.Status().ReadRunning)

	require.NoError(t, l.AcquireWrite())
	require.ErrorIs(t, l.AcquireWrite(), ErrLimitExceeded)
	l.ReleaseWrite()
	require.Equal(t, 0, l.Status().WriteRunning)
}

func TestUnlimited(t *testing.T) {
	l := NewLimiter(LimitConfig{})

	for i := 0; i < 10; i++ {
		require.NoError(t, l.AcquireRead())
		require.NoError(t, l.AcquireWrite())
	}
	require.Equal(t, 0, l.Status().ReadRunning)

	r := l.Reader(context.Background(), bytes.NewReader([]byte("abc")))
	require.NoError(t, r.WaitN(1<<30))
	buf := make([]byte, 3)
	n, err := r.Read(buf)
	require.NoError(t, err)
	require.Equal(t, 3, n)

	var sink bytes.Buffer
	w := l.Writer(context.Background(), &sink)
	require.NoError(t, w.WaitN(1<<30))
	n, err = w.Write([]byte("abc"))
	require.NoError(t, err)
	require.Equal(t, 3, n)
}

func TestRateLimitedReader(t *testing.T) {
	l := NewLimiter(LimitConfig{ReadMBPS: 1})
	ctx := context.Background()

	payload := make([]byte, 1<<20)
	r := l.Reader(ctx, bytes.NewReader(payload))

	// one burst passes without waiting
	start := time.Now()
	buf := make([]byte, 1<<19)
	_, err := r.Read(buf)
	require.NoError(t, err)
	require.Less(t, time.Since(start), time.Second)

	// a canceled context aborts the wait
	canceled, cancel := context.WithCancel(ctx)
	cancel()
	r = l.Reader(canceled, bytes.NewReader(payload))
	require.Error(t, r.WaitN(1<<20))
}

func TestRateLimitedWriter(t *testing.T) {
	l := NewLimiter(LimitConfig{WriteMBPS: 1})
	ctx := context.Background()

	w := l.Writer(ctx, io.Discard)
	start := time.Now()
	n, err := w.Write(make([]byte, 1<<19))
	require.NoError(t, err)
	require.Equal(t, 1<<19, n)
	require.Less(t, time.Since(start), time.Second)

	require.Equal(t, 1, l.Status().Config.WriteMBPS)
}
