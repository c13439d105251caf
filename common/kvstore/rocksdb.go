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

package kvstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"

	rdb "github.com/tecbot/gorocksdb"
)

type (
	rocksdb struct {
		path      string
		db        *rdb.DB
		optHelper *optHelper
		opt       *rdb.Options
		readOpt   *rdb.ReadOptions
		writeOpt  *rdb.WriteOptions
		flushOpt  *rdb.FlushOptions
		cfHandles map[CF]*rdb.ColumnFamilyHandle
		lock      sync.RWMutex
	}
	lruCache struct {
		cache *rdb.Cache
	}
	writeBufferManager struct {
		manager *rdb.WriteBufferManager
	}
	rateLimiter struct {
		limiter *rdb.RateLimiter
	}
	optHelper struct {
		db   *rdb.DB
		opt  *Option
		lock sync.RWMutex
	}
	snapshot struct {
		db   *rdb.DB
		snap *rdb.Snapshot
	}
	readOption struct {
		db   *rdb.DB
		snap *rdb.Snapshot
		opt  *rdb.ReadOptions
	}
	writeOption struct {
		opt *rdb.WriteOptions
	}
	listReader struct {
		iterator   *rdb.Iterator
		prefix     []byte
		filterKeys [][]byte
		consumed   [][]byte
		isFirst    bool
	}
	keyGetter struct {
		key *rdb.Slice
	}
	valueGetter struct {
		index int
		value *rdb.Slice
	}
	env struct {
		*rdb.Env
	}
	sstFileManager struct {
		*rdb.SstFileManager
	}
	writeBatch struct {
		s     *rocksdb
		batch *rdb.WriteBatch
	}
)

func newRocksdb(ctx context.Context, path string, option *Option) (Store, error) {
	if path == "" {
		return nil, errors.New("path is empty")
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, err
	}

	dbOpt := genRocksdbOpts(option)

	cols := make([]CF, 0, len(option.ColumnFamily)+1)
	cols = append(cols, defaultCF)
	cols = append(cols, option.ColumnFamily...)

	cfNames := make([]string, 0, len(cols))
	cfOpts := make([]*rdb.Options, 0, len(cols))
	for _, col := range cols {
		cfNames = append(cfNames, col.String())
		cfOpts = append(cfOpts, dbOpt)
	}

	db, cfhs, err := rdb.OpenDbColumnFamilies(dbOpt, path, cfNames, cfOpts)
	if err != nil {
		return nil, err
	}

	cfhMap := make(map[CF]*rdb.ColumnFamilyHandle, len(cfhs))
	for i, h := range cfhs {
		cfhMap[cols[i]] = h
	}

	wo := rdb.NewDefaultWriteOptions()
	if option.Sync {
		wo.SetSync(true)
	}
	if option.DisableWal {
		wo.DisableWAL(true)
	}

	return &rocksdb{
		db:        db,
		path:      path,
		optHelper: &optHelper{db: db, opt: option},
		opt:       dbOpt,
		readOpt:   rdb.NewDefaultReadOptions(),
		writeOpt:  wo,
		flushOpt:  rdb.NewDefaultFlushOptions(),
		cfHandles: cfhMap,
	}, nil
}

func newRocksdbLruCache(ctx context.Context, size uint64) LruCache {
	return &lruCache{cache: rdb.NewLRUCache(size)}
}

func (c *lruCache) GetUsage() uint64 {
	return c.cache.GetUsage()
}

func (c *lruCache) GetPinnedUsage() uint64 {
	return c.cache.GetPinnedUsage()
}

func (c *lruCache) Close() {
	c.cache.Destroy()
}

func newRocksdbWriteBufferManager(ctx context.Context, bufferSize uint64) WriteBufferManager {
	return &writeBufferManager{manager: rdb.NewWriteBufferManager(bufferSize)}
}

func (m *writeBufferManager) Close() {
	m.manager.Destroy()
}

func newRocksdbRateLimiter(ctx context.Context, bytesPerSec int64) RateLimiter {
	return &rateLimiter{limiter: rdb.NewRateLimiter(bytesPerSec, 10000, 3)}
}

func (l *rateLimiter) SetBytesPerSec(value int64) {
	l.limiter.SetBytesPerSecond(value)
}

func (l *rateLimiter) Close() {
	l.limiter.Destroy()
}

func newRocksdbEnv(ctx context.Context) Env {
	return &env{rdb.NewDefaultEnv()}
}

func (e *env) SetLowPriorityBackgroundThreads(n int) {
	e.SetBackgroundThreads(n)
}

func (e *env) Close() {
	e.Destroy()
}

func newRocksdbSstFileManager(ctx context.Context, e Env) SstFileManager {
	return &sstFileManager{rdb.NewSstFileManager(e.(*env).Env)}
}

func (e *sstFileManager) Close() {
	e.Destroy()
}

func (ss *snapshot) Close() {
	ss.db.ReleaseSnapshot(ss.snap)
}

func (ro *readOption) SetSnapShot(snap Snapshot) {
	ro.snap = snap.(*snapshot).snap
	ro.opt.SetSnapshot(ro.snap)
}

func (ro *readOption) Close() {
	ro.opt.Destroy()
}

func (wo *writeOption) SetSync(value bool) {
	wo.opt.SetSync(value)
}

func (wo *writeOption) DisableWAL(value bool) {
	wo.opt.DisableWAL(value)
}

func (wo *writeOption) Close() {
	wo.opt.Destroy()
}

func (kg keyGetter) Key() []byte {
	return kg.key.Data()
}

func (kg keyGetter) Close() {
	kg.key.Free()
}

func (vg *valueGetter) Value() []byte {
	return vg.value.Data()
}

func (vg *valueGetter) Read(b []byte) (n int, err error) {
	if vg.index >= len(vg.Value()) {
		return 0, io.EOF
	}
	n = copy(b, vg.Value()[vg.index:])
	vg.index += n
	return
}

func (vg *valueGetter) Size() int {
	return vg.value.Size()
}

func (vg *valueGetter) Close() {
	vg.value.Free()
}

// ReadNext returns the entry under the cursor and advances past it.
// Filtered keys are skipped and their slices released.
func (lr *listReader) ReadNext() (key KeyGetter, val ValueGetter, err error) {
	for {
		if !lr.isFirst {
			lr.iterator.Next()
		}
		lr.isFirst = false
		if err = lr.iterator.Err(); err != nil {
			return nil, nil, err
		}
		if !lr.iterator.Valid() {
			return nil, nil, nil
		}
		if lr.prefix != nil && !lr.iterator.ValidForPrefix(lr.prefix) {
			return nil, nil, nil
		}
		kg := keyGetter{key: lr.iterator.Key()}
		if lr.dropFilterKey(kg.Key()) {
			kg.Close()
			continue
		}
		return kg, &valueGetter{value: lr.iterator.Value()}, nil
	}
}

func (lr *listReader) ReadNextCopy() (key []byte, value []byte, err error) {
	kg, vg, err := lr.ReadNext()
	if err != nil || kg == nil || vg == nil {
		return nil, nil, err
	}
	key = make([]byte, len(kg.Key()))
	value = make([]byte, vg.Size())
	copy(key, kg.Key())
	copy(value, vg.Value())
	kg.Close()
	vg.Close()
	return
}

// ReadLast positions at the final entry of the range. With a prefix it
// walks forward to the last key still matching the prefix.
func (lr *listReader) ReadLast() (key KeyGetter, val ValueGetter, err error) {
	if lr.prefix == nil {
		lr.iterator.SeekToLast()
		if err = lr.iterator.Err(); err != nil {
			return
		}
		if !lr.iterator.Valid() {
			return
		}
		key = keyGetter{key: lr.iterator.Key()}
		val = &valueGetter{value: lr.iterator.Value()}
		return
	}
	for {
		if err = lr.iterator.Err(); err != nil {
			return
		}
		if !lr.iterator.Valid() {
			lr.iterator.SeekToLast()
			break
		}
		if !lr.iterator.ValidForPrefix(lr.prefix) {
			lr.iterator.Prev()
			break
		}
		lr.iterator.Next()
	}
	if !lr.iterator.Valid() || !lr.iterator.ValidForPrefix(lr.prefix) {
		return
	}
	key = keyGetter{key: lr.iterator.Key()}
	val = &valueGetter{value: lr.iterator.Value()}
	return
}

func (lr *listReader) SeekTo(key []byte) {
	lr.rewind(nil)
	lr.iterator.Seek(key)
}

func (lr *listReader) SeekToPrefix(prefix []byte) {
	lr.rewind(prefix)
	lr.iterator.Seek(prefix)
}

// rewind re-arms previously consumed filter keys so a fresh scan skips
// them again.
func (lr *listReader) rewind(prefix []byte) {
	lr.isFirst = true
	lr.prefix = prefix
	lr.filterKeys = append(lr.filterKeys, lr.consumed...)
	lr.consumed = lr.consumed[:0]
}

func (lr *listReader) SetFilterKey(key []byte) {
	lr.filterKeys = append(lr.filterKeys, key)
}

func (lr *listReader) dropFilterKey(key []byte) bool {
	for i := range lr.filterKeys {
		if bytes.Equal(lr.filterKeys[i], key) {
			lr.consumed = append(lr.consumed, lr.filterKeys[i])
			lr.filterKeys = append(lr.filterKeys[:i], lr.filterKeys[i+1:]...)
			return true
		}
	}
	return false
}

func (lr *listReader) Close() {
	lr.iterator.Close()
}

func (w *writeBatch) Put(col CF, key, value []byte) {
	w.batch.PutCF(w.s.getColumnFamily(col), key, value)
}

func (w *writeBatch) Delete(col CF, key []byte) {
	w.batch.DeleteCF(w.s.getColumnFamily(col), key)
}

func (w *writeBatch) DeleteRange(col CF, startKey, endKey []byte) {
	w.batch.DeleteRangeCF(w.s.getColumnFamily(col), startKey, endKey)
}

func (w *writeBatch) Data() []byte {
	return w.batch.Data()
}

func (w *writeBatch) From(data []byte) {
	w.batch = rdb.WriteBatchFrom(data)
}

func (w *writeBatch) Close() {
	w.batch.Destroy()
}

func (s *rocksdb) NewSnapshot() Snapshot {
	return &snapshot{db: s.db, snap: s.db.NewSnapshot()}
}

func (s *rocksdb) NewReadOption() ReadOption {
	return &readOption{db: s.db, opt: rdb.NewDefaultReadOptions()}
}

func (s *rocksdb) NewWriteOption() WriteOption {
	return &writeOption{opt: rdb.NewDefaultWriteOptions()}
}

func (s *rocksdb) NewWriteBatch() WriteBatch {
	return &writeBatch{s: s, batch: rdb.NewWriteBatch()}
}

func (s *rocksdb) CreateColumn(col CF) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.cfHandles[col] != nil {
		return nil
	}
	h, err := s.db.CreateColumnFamily(s.opt, col.String())
	if err != nil {
		return err
	}
	s.cfHandles[col] = h
	return nil
}

func (s *rocksdb) GetAllColumns() (ret []CF) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	for col := range s.cfHandles {
		ret = append(ret, col)
	}
	return
}

func (s *rocksdb) CheckColumns(col CF) bool {
	if col == "" {
		return true
	}
	s.lock.RLock()
	defer s.lock.RUnlock()
	_, ok := s.cfHandles[col]
	return ok
}

func (s *rocksdb) Get(ctx context.Context, col CF, key []byte, readOpt ReadOption) (value ValueGetter, err error) {
	v, err := s.getSlice(col, key, readOpt)
	if err != nil {
		return nil, err
	}
	return &valueGetter{value: v}, nil
}

func (s *rocksdb) GetRaw(ctx context.Context, col CF, key []byte, readOpt ReadOption) (value []byte, err error) {
	v, err := s.getSlice(col, key, readOpt)
	if err != nil {
		return nil, err
	}
	value = make([]byte, v.Size())
	copy(value, v.Data())
	v.Free()
	return value, nil
}

func (s *rocksdb) getSlice(col CF, key []byte, readOpt ReadOption) (*rdb.Slice, error) {
	v, err := s.db.GetCF(s.resolveRead(readOpt), s.getColumnFamily(col), key)
	if err != nil {
		return nil, err
	}
	if !v.Exists() {
		return nil, ErrNotFound
	}
	return v, nil
}

func (s *rocksdb) SetRaw(ctx context.Context, col CF, key []byte, value []byte, writeOpt WriteOption) error {
	return s.db.PutCF(s.resolveWrite(writeOpt), s.getColumnFamily(col), key, value)
}

func (s *rocksdb) Delete(ctx context.Context, col CF, key []byte, writeOpt WriteOption) error {
	return s.db.DeleteCF(s.resolveWrite(writeOpt), s.getColumnFamily(col), key)
}

func (s *rocksdb) List(ctx context.Context, col CF, prefix []byte, marker []byte, readOpt ReadOption) ListReader {
	t := s.db.NewIteratorCF(s.resolveRead(readOpt), s.getColumnFamily(col))
	switch {
	case len(marker) > 0:
		t.Seek(marker)
	case prefix != nil:
		t.Seek(prefix)
	default:
		t.SeekToFirst()
	}
	return &listReader{iterator: t, prefix: prefix, isFirst: true}
}

func (s *rocksdb) Write(ctx context.Context, batch WriteBatch, writeOpt WriteOption) error {
	return s.db.Write(s.resolveWrite(writeOpt), batch.(*writeBatch).batch)
}

func (s *rocksdb) Read(ctx context.Context, cols []CF, keys [][]byte, readOpt ReadOption) (values []ValueGetter, err error) {
	cfhs := make([]*rdb.ColumnFamilyHandle, len(cols))
	for i, col := range cols {
		cfhs[i] = s.getColumnFamily(col)
	}
	slices, err := s.db.MultiGetCFMultiCF(s.resolveRead(readOpt), cfhs, keys)
	if err != nil {
		return nil, err
	}
	values = make([]ValueGetter, len(slices))
	for i := range slices {
		if slices[i].Data() == nil {
			continue
		}
		values[i] = &valueGetter{value: slices[i]}
	}
	return
}

func (s *rocksdb) FlushCF(ctx context.Context, col CF) error {
	return s.db.FlushCF(s.flushOpt, s.getColumnFamily(col))
}

func (s *rocksdb) Stats(ctx context.Context) (stats Stats, err error) {
	var (
		size                     int64
		totalIndexAndFilterUsage uint64
		totalMemtableUsage       uint64
	)
	for _, f := range s.db.GetLiveFilesMetaData() {
		size += f.Size
	}
	for _, cf := range s.cfHandles {
		indexAndFilterUsage, _ := strconv.ParseUint(s.db.GetPropertyCF("rocksdb.estimate-table-readers-mem", cf), 10, 64)
		memtableUsage, _ := strconv.ParseUint(s.db.GetPropertyCF("rocksdb.cur-size-all-mem-tables", cf), 10, 64)
		totalIndexAndFilterUsage += indexAndFilterUsage
		totalMemtableUsage += memtableUsage
	}
	blockCacheUsage, _ := strconv.ParseUint(s.db.GetProperty("rocksdb.block-cache-usage"), 10, 64)
	blockPinnedUsage, _ := strconv.ParseUint(s.db.GetProperty("rocksdb.block-cache-pinned-usage"), 10, 64)
	stats = Stats{
		Used: uint64(size),
		MemoryUsage: MemoryUsage{
			BlockCacheUsage:     blockCacheUsage,
			IndexAndFilterUsage: totalIndexAndFilterUsage,
			MemtableUsage:       totalMemtableUsage,
			BlockPinnedUsage:    blockPinnedUsage,
			Total:               blockCacheUsage + totalIndexAndFilterUsage + totalMemtableUsage + blockPinnedUsage,
		},
	}
	return
}

func (s *rocksdb) Close() {
	s.writeOpt.Destroy()
	s.readOpt.Destroy()
	s.opt.Destroy()
	s.flushOpt.Destroy()
	for i := range s.cfHandles {
		s.cfHandles[i].Destroy()
	}
	s.db.Close()
}

func (s *rocksdb) GetOptionHelper() OptionHelper {
	return s.optHelper
}

func (s *rocksdb) resolveRead(readOpt ReadOption) *rdb.ReadOptions {
	if readOpt != nil {
		return readOpt.(*readOption).opt
	}
	return s.readOpt
}

func (s *rocksdb) resolveWrite(writeOpt WriteOption) *rdb.WriteOptions {
	if writeOpt != nil {
		return writeOpt.(*writeOption).opt
	}
	return s.writeOpt
}

func (s *rocksdb) getColumnFamily(col CF) *rdb.ColumnFamilyHandle {
	if col == "" {
		col = defaultCF
	}
	s.lock.RLock()
	cf, ok := s.cfHandles[col]
	s.lock.RUnlock()
	if !ok {
		panic(fmt.Sprintf("col:%s not exist", col.String()))
	}
	return cf
}

func (oph *optHelper) GetOption() Option {
	oph.lock.RLock()
	opt := *oph.opt
	oph.lock.RUnlock()
	return opt
}

func (oph *optHelper) setDBOption(name, value string, record func()) error {
	oph.lock.Lock()
	defer oph.lock.Unlock()
	if err := oph.db.SetDBOptions([]string{name}, []string{value}); err != nil {
		return err
	}
	record()
	return nil
}

func (oph *optHelper) setCFOption(name, value string, record func()) error {
	oph.lock.Lock()
	defer oph.lock.Unlock()
	if err := oph.db.SetOptions([]string{name}, []string{value}); err != nil {
		return err
	}
	record()
	return nil
}

func (oph *optHelper) SetMaxBackgroundJobs(value int) error {
	return oph.setDBOption("max_background_jobs", strconv.Itoa(value), func() {
		oph.opt.MaxBackgroundJobs = value
	})
}

func (oph *optHelper) SetMaxBackgroundCompactions(value int) error {
	return oph.setDBOption("max_background_compactions", strconv.Itoa(value), func() {
		oph.opt.MaxBackgroundCompactions = value
	})
}

// SetMaxSubCompactions is recorded only; rocksdb cannot change it on a
// live db.
func (oph *optHelper) SetMaxSubCompactions(value int) error {
	oph.lock.Lock()
	oph.opt.MaxSubCompactions = value
	oph.lock.Unlock()
	return nil
}

func (oph *optHelper) SetMaxOpenFiles(value int) error {
	return oph.setDBOption("max_open_files", strconv.Itoa(value), func() {
		oph.opt.MaxOpenFiles = value
	})
}

func (oph *optHelper) SetMaxWriteBufferNumber(value int) error {
	return oph.setCFOption("max_write_buffer_number", strconv.Itoa(value), func() {
		oph.opt.MaxWriteBufferNumber = value
	})
}

func (oph *optHelper) SetWriteBufferSize(size int) error {
	return oph.setCFOption("write_buffer_size", strconv.Itoa(size), func() {
		oph.opt.WriteBufferSize = size
	})
}

func (oph *optHelper) SetArenaBlockSize(size int) error {
	return oph.setCFOption("arena_block_size", strconv.Itoa(size), func() {
		oph.opt.ArenaBlockSize = size
	})
}

func (oph *optHelper) SetTargetFileSizeBase(value uint64) error {
	return oph.setCFOption("target_file_size_base", strconv.FormatUint(value, 10), func() {
		oph.opt.TargetFileSizeBase = value
	})
}

func (oph *optHelper) SetMaxBytesForLevelBase(value uint64) error {
	return oph.setCFOption("max_bytes_for_level_base", strconv.FormatUint(value, 10), func() {
		oph.opt.MaxBytesForLevelBase = value
	})
}

func (oph *optHelper) SetLevel0SlowdownWritesTrigger(value int) error {
	return oph.setCFOption("level0_slowdown_writes_trigger", strconv.Itoa(value), func() {
		oph.opt.Level0SlowdownWritesTrigger = value
	})
}

func (oph *optHelper) SetLevel0StopWritesTrigger(value int) error {
	return oph.setCFOption("level0_stop_writes_trigger", strconv.Itoa(value), func() {
		oph.opt.Level0StopWritesTrigger = value
	})
}

func (oph *optHelper) SetSoftPendingCompactionBytesLimit(value uint64) error {
	return oph.setCFOption("soft_pending_compaction_bytes_limit", strconv.FormatUint(value, 10), func() {
		oph.opt.SoftPendingCompactionBytesLimit = value
	})
}

func (oph *optHelper) SetHardPendingCompactionBytesLimit(value uint64) error {
	return oph.setCFOption("hard_pending_compaction_bytes_limit", strconv.FormatUint(value, 10), func() {
		oph.opt.HardPendingCompactionBytesLimit = value
	})
}

// SetBlockSize is recorded only; the block based table options are fixed
// once the db is open.
func (oph *optHelper) SetBlockSize(size int) error {
	oph.lock.Lock()
	oph.opt.BlockSize = size
	oph.lock.Unlock()
	return nil
}

func (oph *optHelper) SetFIFOCompactionMaxTableFileSize(size int) error {
	name, value := formatFIFOCompactionOption("max_table_files_size", strconv.Itoa(size))
	return oph.setCFOption(name, value, func() {
		oph.opt.CompactionOptionFIFO.MaxTableFileSize = size
	})
}

func (oph *optHelper) SetFIFOCompactionAllow(allow bool) error {
	name, value := formatFIFOCompactionOption("allow_compaction", strconv.FormatBool(allow))
	return oph.setCFOption(name, value, func() {
		oph.opt.CompactionOptionFIFO.AllowCompaction = allow
	})
}

func (oph *optHelper) SetIOWriteRateLimiter(value int64) error {
	oph.lock.Lock()
	defer oph.lock.Unlock()
	if oph.opt.IOWriteRateLimiter == nil {
		oph.opt.IOWriteRateLimiter = &rateLimiter{limiter: rdb.NewRateLimiter(value, 10000, 3)}
		return nil
	}
	oph.opt.IOWriteRateLimiter.SetBytesPerSec(value)
	return nil
}

func genRocksdbOpts(opt *Option) (opts *rdb.Options) {
	opts = rdb.NewDefaultOptions()
	blockBaseOpt := rdb.NewDefaultBlockBasedTableOptions()
	fifoCompactionOpt := rdb.NewDefaultFIFOCompactionOptions()
	opts.SetCreateIfMissing(opt.CreateIfMissing)
	if opt.BlockSize > 0 {
		blockBaseOpt.SetBlockSize(opt.BlockSize)
	}
	if opt.Cache != nil {
		blockBaseOpt.SetBlockCache(opt.Cache.(*lruCache).cache)
	} else if opt.BlockCache > 0 {
		blockBaseOpt.SetBlockCache(rdb.NewLRUCache(opt.BlockCache))
	}
	opts.SetEnablePipelinedWrite(opt.EnablePipelinedWrite)
	if opt.MaxBackgroundCompactions > 0 {
		opts.SetMaxBackgroundCompactions(opt.MaxBackgroundCompactions)
	}
	if opt.MaxBackgroundFlushes > 0 {
		opts.SetMaxBackgroundFlushes(opt.MaxBackgroundFlushes)
	}
	if opt.MaxSubCompactions > 0 {
		opts.SetMaxSubCompactions(opt.MaxSubCompactions)
	}
	opts.SetLevelCompactionDynamicLevelBytes(opt.LevelCompactionDynamicLevelBytes)
	if opt.MaxOpenFiles > 0 {
		opts.SetMaxOpenFiles(opt.MaxOpenFiles)
	}
	if opt.MinWriteBufferNumberToMerge > 0 {
		opts.SetMinWriteBufferNumberToMerge(opt.MinWriteBufferNumberToMerge)
	}
	if opt.MaxWriteBufferNumber > 0 {
		opts.SetMaxWriteBufferNumber(opt.MaxWriteBufferNumber)
	}
	if opt.WriteBufferSize > 0 {
		opts.SetWriteBufferSize(opt.WriteBufferSize)
	}
	if opt.ArenaBlockSize > 0 {
		opts.SetArenaBlockSize(opt.ArenaBlockSize)
	}
	if opt.TargetFileSizeBase > 0 {
		opts.SetTargetFileSizeBase(opt.TargetFileSizeBase)
	}
	if opt.MaxBytesForLevelBase > 0 {
		opts.SetMaxBytesForLevelBase(opt.MaxBytesForLevelBase)
	}
	if opt.KeepLogFileNum > 0 {
		opts.SetKeepLogFileNum(opt.KeepLogFileNum)
	}
	if opt.MaxLogFileSize > 0 {
		opts.SetMaxLogFileSize(opt.MaxLogFileSize)
	}
	if opt.Level0SlowdownWritesTrigger > 0 {
		opts.SetLevel0SlowdownWritesTrigger(opt.Level0SlowdownWritesTrigger)
	}
	if opt.Level0StopWritesTrigger > 0 {
		opts.SetLevel0StopWritesTrigger(opt.Level0StopWritesTrigger)
	}
	if opt.SoftPendingCompactionBytesLimit > 0 {
		opts.SetSoftPendingCompactionBytesLimit(opt.SoftPendingCompactionBytesLimit)
	}
	if opt.HardPendingCompactionBytesLimit > 0 {
		opts.SetHardPendingCompactionBytesLimit(opt.HardPendingCompactionBytesLimit)
	}
	switch opt.CompactionStyle {
	case FIFOStyle:
		opts.SetCompactionStyle(rdb.FIFOCompactionStyle)
	case LevelStyle:
		opts.SetCompactionStyle(rdb.LevelCompactionStyle)
	case UniversalStyle:
		opts.SetCompactionStyle(rdb.UniversalCompactionStyle)
	default:
	}
	if opt.CompactionOptionFIFO.MaxTableFileSize > 0 {
		fifoCompactionOpt.SetMaxTableFilesSize(uint64(opt.CompactionOptionFIFO.MaxTableFileSize))
	}
	if opt.IOWriteRateLimiter != nil {
		opts.SetRateLimiter(opt.IOWriteRateLimiter.(*rateLimiter).limiter)
	}
	if opt.WriteBufferManager != nil {
		opts.SetWriteBufferManager(opt.WriteBufferManager.(*writeBufferManager).manager)
	}
	if opt.MaxWalLogSize > 0 {
		opts.SetMaxTotalWalSize(opt.MaxWalLogSize)
	}
	if opt.Env != nil {
		opts.SetEnv(opt.Env.(*env).Env)
	} else {
		opts.SetEnv(rdb.NewDefaultEnv())
	}
	if opt.SstFileManager != nil {
		opts.SetSstFileManager(opt.SstFileManager.(*sstFileManager).SstFileManager)
	}

	opts.SetStatsDumpPeriodSec(0)
	opts.SetStatsPersistPeriodSec(0)
	opts.SetBlockBasedTableFactory(blockBaseOpt)
	opts.SetFIFOCompactionOptions(fifoCompactionOpt)
	opts.SetCreateIfMissingColumnFamilies(true)
	return
}

func formatFIFOCompactionOption(key, value string) (string, string) {
	return "compaction_options_fifo", fmt.Sprintf("%s=%s;", key, value)
}
