/*
Package memory provides the in-memory reference implementation of the
storage contract.

PURPOSE:
  A complete, dependency-free backend used by tests and by deployments
  that explicitly opt out of durability. It is the executable definition
  of the write rules: the sqlite backend must agree with it on every
  observable behavior.

CONCURRENCY:
  One mutex guards the whole store for the duration of each operation.
  Put validates every item first and only then mutates, so a failed
  transaction leaves no partial state. Throughput is not a goal here.

SEE ALSO:
  - vss/store.go: the contract and version-sentinel rules
  - store/storetest/suite.go: conformance suite both backends run
  - store/sqlite/sqlite.go: the durable implementation
*/
package memory

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/lightningdevkit/vss-server/vss"
)

type record struct {
	value         []byte
	version       int64
	createdAt     time.Time
	lastUpdatedAt time.Time
}

// namespace holds one (user_token, store_id) keyspace. keys mirrors the
// record map in ascending order so list pages come out sorted without a
// per-request sort.
type namespace struct {
	records map[string]*record
	keys    []string
}

type nsKey struct {
	userToken string
	storeID   string
}

// Store is the in-memory backend.
type Store struct {
	mu         sync.Mutex
	namespaces map[nsKey]*namespace
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{namespaces: make(map[nsKey]*namespace)}
}

func (s *Store) namespaceLocked(userToken, storeID string) *namespace {
	k := nsKey{userToken: userToken, storeID: storeID}
	ns, ok := s.namespaces[k]
	if !ok {
		ns = &namespace{records: make(map[string]*record)}
		s.namespaces[k] = ns
	}
	return ns
}

func (ns *namespace) globalVersionLocked() int64 {
	if r, ok := ns.records[vss.GlobalVersionKey]; ok {
		return r.version
	}
	return 0
}

// validatePutLocked checks one put item against the current state without
// mutating it.
func (ns *namespace) validatePutLocked(kv *vss.KeyValue) error {
	switch {
	case kv.Version == -1:
		return nil
	case kv.Version == 0:
		if _, ok := ns.records[kv.Key]; ok {
			return vss.NewConflict("Key %s already exists for conditional insert", kv.Key)
		}
		return nil
	default:
		existing, ok := ns.records[kv.Key]
		if !ok {
			return vss.NewConflict("Key %s does not exist for conditional update", kv.Key)
		}
		if existing.version != kv.Version {
			return vss.NewConflict("Version mismatch for key %s: expected %d, found %d",
				kv.Key, kv.Version, existing.version)
		}
		return nil
	}
}

// validateDeleteLocked checks one delete item of a Put. Inside a Put an
// absent key conflicts even for a non-conditional (-1) delete.
func (ns *namespace) validateDeleteLocked(kv *vss.KeyValue) error {
	existing, ok := ns.records[kv.Key]
	if !ok {
		return vss.NewConflict("Key %s does not exist for delete", kv.Key)
	}
	if kv.Version != -1 && existing.version != kv.Version {
		return vss.NewConflict("Version mismatch for delete key %s: expected %d, found %d",
			kv.Key, kv.Version, existing.version)
	}
	return nil
}

// applyPutLocked assumes validation already passed.
func (ns *namespace) applyPutLocked(kv *vss.KeyValue, now time.Time) {
	if existing, ok := ns.records[kv.Key]; ok {
		if kv.Version == -1 {
			existing.version = vss.InitialRecordVersion
		} else {
			existing.version++
		}
		existing.value = append([]byte(nil), kv.Value...)
		existing.lastUpdatedAt = now
		return
	}
	ns.records[kv.Key] = &record{
		value:         append([]byte(nil), kv.Value...),
		version:       vss.InitialRecordVersion,
		createdAt:     now,
		lastUpdatedAt: now,
	}
	i := sort.SearchStrings(ns.keys, kv.Key)
	ns.keys = append(ns.keys, "")
	copy(ns.keys[i+1:], ns.keys[i:])
	ns.keys[i] = kv.Key
}

func (ns *namespace) applyDeleteLocked(key string) {
	if _, ok := ns.records[key]; !ok {
		return
	}
	delete(ns.records, key)
	i := sort.SearchStrings(ns.keys, key)
	ns.keys = append(ns.keys[:i], ns.keys[i+1:]...)
}

// Get implements vss.Store.
func (s *Store) Get(_ context.Context, userToken string, req *vss.GetObjectRequest) (*vss.GetObjectResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ns := s.namespaceLocked(userToken, req.StoreID)
	if r, ok := ns.records[req.Key]; ok {
		return &vss.GetObjectResponse{Value: &vss.KeyValue{
			Key:     req.Key,
			Version: r.version,
			Value:   append([]byte(nil), r.value...),
		}}, nil
	}
	if req.Key == vss.GlobalVersionKey {
		return &vss.GetObjectResponse{Value: &vss.KeyValue{Key: vss.GlobalVersionKey, Version: 0}}, nil
	}
	return nil, vss.NewNoSuchKey("Requested key not found.")
}

// Put implements vss.Store. Every item is validated before anything is
// written, so a Conflict leaves the namespace untouched.
func (s *Store) Put(_ context.Context, userToken string, req *vss.PutObjectRequest) (*vss.PutObjectResponse, error) {
	if err := vss.ValidatePut(req); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ns := s.namespaceLocked(userToken, req.StoreID)

	var sentinel *vss.KeyValue
	if req.GlobalVersion != nil {
		sentinel = &vss.KeyValue{Key: vss.GlobalVersionKey, Version: *req.GlobalVersion}
		if err := ns.validatePutLocked(sentinel); err != nil {
			return nil, err
		}
	}
	for i := range req.TransactionItems {
		if err := ns.validatePutLocked(&req.TransactionItems[i]); err != nil {
			return nil, err
		}
	}
	for i := range req.DeleteItems {
		if err := ns.validateDeleteLocked(&req.DeleteItems[i]); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	for i := range req.TransactionItems {
		ns.applyPutLocked(&req.TransactionItems[i], now)
	}
	for i := range req.DeleteItems {
		ns.applyDeleteLocked(req.DeleteItems[i].Key)
	}
	if sentinel != nil {
		ns.applyPutLocked(sentinel, now)
	}
	return &vss.PutObjectResponse{}, nil
}

// Delete implements vss.Store. Deleting an absent key succeeds; a version
// mismatch on a present key is still a Conflict.
func (s *Store) Delete(_ context.Context, userToken string, req *vss.DeleteObjectRequest) (*vss.DeleteObjectResponse, error) {
	if req.KeyValue == nil {
		return nil, vss.NewInvalidRequest("key_value missing in DeleteObjectRequest")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ns := s.namespaceLocked(userToken, req.StoreID)
	kv := req.KeyValue
	existing, ok := ns.records[kv.Key]
	if !ok {
		return &vss.DeleteObjectResponse{}, nil
	}
	if kv.Version != -1 && existing.version != kv.Version {
		return nil, vss.NewConflict("Version mismatch for delete key %s: expected %d, found %d",
			kv.Key, kv.Version, existing.version)
	}
	ns.applyDeleteLocked(kv.Key)
	return &vss.DeleteObjectResponse{}, nil
}

// ListKeyVersions implements vss.Store. Pages are addressed by a numeric
// offset token; the sorted key slice makes each page a contiguous scan.
func (s *Store) ListKeyVersions(_ context.Context, userToken string, req *vss.ListKeyVersionsRequest) (*vss.ListKeyVersionsResponse, error) {
	limit := vss.EffectivePageSize(req.PageSize)

	var offset int
	if req.PageToken != nil && *req.PageToken != "" {
		parsed, err := strconv.Atoi(*req.PageToken)
		if err != nil || parsed < 0 {
			return nil, vss.NewInvalidRequest("Invalid page token %q", *req.PageToken)
		}
		offset = parsed
	}

	var prefix string
	if req.KeyPrefix != nil {
		prefix = *req.KeyPrefix
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ns := s.namespaceLocked(userToken, req.StoreID)

	resp := &vss.ListKeyVersionsResponse{}
	if req.PageToken == nil {
		gv := ns.globalVersionLocked()
		resp.GlobalVersion = &gv
	}

	skipped := 0
	start := sort.SearchStrings(ns.keys, prefix)
	for _, key := range ns.keys[start:] {
		if !strings.HasPrefix(key, prefix) {
			break
		}
		if key == vss.GlobalVersionKey {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		if len(resp.KeyVersions) == limit {
			break
		}
		resp.KeyVersions = append(resp.KeyVersions, vss.KeyValue{
			Key:     key,
			Version: ns.records[key].version,
		})
	}

	next := ""
	if len(resp.KeyVersions) > 0 {
		next = strconv.Itoa(offset + len(resp.KeyVersions))
	}
	resp.NextPageToken = &next
	return resp, nil
}
