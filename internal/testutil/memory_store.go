package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/wms-platform/coldroom-service/internal/domain"
)

// Hooks inject failures into a MemoryStore. A non-nil return aborts the call.
type Hooks struct {
	BoxCreate            func(box *domain.Box) error
	BoxUpdate            func(box *domain.Box) error
	BoxDelete            func(id string) error
	CountingRecordUpdate func(record *domain.CountingRecord) error
	RepackingCreate      func(record *domain.RepackingRecord) error
}

type memState struct {
	boxes     map[string]*domain.Box
	pallets   map[string]*domain.Pallet
	records   map[string]storedRecord
	temps     []*domain.TemperatureLog
	repacking []*domain.RepackingRecord
	events    []domain.DomainEvent
}

type storedRecord struct {
	record *domain.CountingRecord
	docs   domain.StoredCountingDocuments
}

func (s *memState) clone() *memState {
	out := &memState{
		boxes:     make(map[string]*domain.Box, len(s.boxes)),
		pallets:   make(map[string]*domain.Pallet, len(s.pallets)),
		records:   make(map[string]storedRecord, len(s.records)),
		temps:     append([]*domain.TemperatureLog(nil), s.temps...),
		repacking: append([]*domain.RepackingRecord(nil), s.repacking...),
		events:    append([]domain.DomainEvent(nil), s.events...),
	}
	for k, v := range s.boxes {
		out.boxes[k] = cloneBox(v)
	}
	for k, v := range s.pallets {
		p := *v
		out.pallets[k] = &p
	}
	for k, v := range s.records {
		out.records[k] = v
	}
	return out
}

// MemoryStore is an in-memory domain.Store. Transactions are serialized and
// roll back to the state captured when they began.
type MemoryStore struct {
	shared *memShared
	inTx   bool
	Hooks  *Hooks
}

type memShared struct {
	txMu  sync.Mutex
	mu    sync.Mutex
	state *memState
}

var _ domain.Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		shared: &memShared{state: &memState{
			boxes:   make(map[string]*domain.Box),
			pallets: make(map[string]*domain.Pallet),
			records: make(map[string]storedRecord),
		}},
		Hooks: &Hooks{},
	}
}

func (m *MemoryStore) Boxes() domain.BoxRepository                      { return memBoxes{m} }
func (m *MemoryStore) Pallets() domain.PalletRepository                 { return memPallets{m} }
func (m *MemoryStore) CountingRecords() domain.CountingRecordRepository { return memRecords{m} }
func (m *MemoryStore) TemperatureLogs() domain.TemperatureLogRepository { return memTemps{m} }
func (m *MemoryStore) RepackingRecords() domain.RepackingRecordRepository {
	return memRepacking{m}
}
func (m *MemoryStore) Events() domain.EventRecorder { return memEvents{m} }

// Ping always succeeds
func (m *MemoryStore) Ping(ctx context.Context) error { return ctx.Err() }

// WithinTransaction runs fn with exclusive access and restores the prior state if fn fails
func (m *MemoryStore) WithinTransaction(ctx context.Context, fn func(ctx context.Context, tx domain.Store) error) error {
	if m.inTx {
		return fn(ctx, m)
	}
	m.shared.txMu.Lock()
	defer m.shared.txMu.Unlock()

	m.shared.mu.Lock()
	snapshot := m.shared.state.clone()
	m.shared.mu.Unlock()

	tx := &MemoryStore{shared: m.shared, inTx: true, Hooks: m.Hooks}
	if err := fn(ctx, tx); err != nil {
		m.shared.mu.Lock()
		m.shared.state = snapshot
		m.shared.mu.Unlock()
		return err
	}
	return ctx.Err()
}

func (m *MemoryStore) read(fn func(s *memState)) {
	m.shared.mu.Lock()
	defer m.shared.mu.Unlock()
	fn(m.shared.state)
}

// SeedBox stores a box as-is
func (m *MemoryStore) SeedBox(box *domain.Box) {
	m.read(func(s *memState) { s.boxes[box.ID] = cloneBox(box) })
}

// SeedPallet stores a pallet as-is
func (m *MemoryStore) SeedPallet(p *domain.Pallet) {
	cp := *p
	m.read(func(s *memState) { s.pallets[p.ID] = &cp })
}

// SeedCountingRecord stores a record through its encoded documents
func (m *MemoryStore) SeedCountingRecord(rec *domain.CountingRecord) error {
	return m.CountingRecords().Create(context.Background(), rec)
}

// SeedRawCountingRecord stores a record with raw document text, for malformed-data cases
func (m *MemoryStore) SeedRawCountingRecord(rec *domain.CountingRecord, docs domain.StoredCountingDocuments) {
	cp := *rec
	m.read(func(s *memState) { s.records[rec.ID] = storedRecord{record: &cp, docs: docs} })
}

// AllBoxes returns copies of every stored box sorted FIFO
func (m *MemoryStore) AllBoxes() []*domain.Box {
	var out []*domain.Box
	m.read(func(s *memState) {
		for _, b := range s.boxes {
			out = append(out, cloneBox(b))
		}
	})
	domain.SortFIFO(out)
	return out
}

// AllPallets returns copies of every stored pallet
func (m *MemoryStore) AllPallets() []*domain.Pallet {
	var out []*domain.Pallet
	m.read(func(s *memState) {
		for _, p := range s.pallets {
			cp := *p
			out = append(out, &cp)
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// RecordedEvents returns every event recorded so far
func (m *MemoryStore) RecordedEvents() []domain.DomainEvent {
	var out []domain.DomainEvent
	m.read(func(s *memState) { out = append(out, s.events...) })
	return out
}

// RepackingRecordsStored returns the stored audit records
func (m *MemoryStore) RepackingRecordsStored() []*domain.RepackingRecord {
	var out []*domain.RepackingRecord
	m.read(func(s *memState) { out = append(out, s.repacking...) })
	return out
}

func cloneBox(b *domain.Box) *domain.Box {
	cp := *b
	if b.CountingRecordID != nil {
		v := *b.CountingRecordID
		cp.CountingRecordID = &v
	}
	if b.PalletID != nil {
		v := *b.PalletID
		cp.PalletID = &v
	}
	if b.LoadingSheetID != nil {
		v := *b.LoadingSheetID
		cp.LoadingSheetID = &v
	}
	if b.ConvertedToPalletAt != nil {
		v := *b.ConvertedToPalletAt
		cp.ConvertedToPalletAt = &v
	}
	return &cp
}

type memBoxes struct{ m *MemoryStore }

func (r memBoxes) Create(ctx context.Context, box *domain.Box) error {
	if h := r.m.Hooks.BoxCreate; h != nil {
		if err := h(box); err != nil {
			return err
		}
	}
	r.m.read(func(s *memState) { s.boxes[box.ID] = cloneBox(box) })
	return nil
}

func (r memBoxes) Update(ctx context.Context, box *domain.Box) error {
	if h := r.m.Hooks.BoxUpdate; h != nil {
		if err := h(box); err != nil {
			return err
		}
	}
	var err error
	r.m.read(func(s *memState) {
		if _, ok := s.boxes[box.ID]; !ok {
			err = domain.ErrBoxNotFound
			return
		}
		s.boxes[box.ID] = cloneBox(box)
	})
	return err
}

func (r memBoxes) Delete(ctx context.Context, id string) error {
	if h := r.m.Hooks.BoxDelete; h != nil {
		if err := h(id); err != nil {
			return err
		}
	}
	var err error
	r.m.read(func(s *memState) {
		if _, ok := s.boxes[id]; !ok {
			err = domain.ErrBoxNotFound
			return
		}
		delete(s.boxes, id)
	})
	return err
}

func (r memBoxes) FindByID(ctx context.Context, id string) (*domain.Box, error) {
	var out *domain.Box
	r.m.read(func(s *memState) {
		if b, ok := s.boxes[id]; ok {
			out = cloneBox(b)
		}
	})
	if out == nil {
		return nil, domain.ErrBoxNotFound
	}
	return out, nil
}

func (r memBoxes) filter(pred func(b *domain.Box) bool) []*domain.Box {
	var out []*domain.Box
	r.m.read(func(s *memState) {
		for _, b := range s.boxes {
			if pred(b) {
				out = append(out, cloneBox(b))
			}
		}
	})
	domain.SortFIFO(out)
	return out
}

func (r memBoxes) FindAvailable(ctx context.Context, key domain.BoxGroupKey) ([]*domain.Box, error) {
	return r.filter(func(b *domain.Box) bool {
		return b.IsAvailable() && b.GroupKey() == key
	}), nil
}

func (r memBoxes) FindRemovalCandidates(ctx context.Context, key domain.BoxGroupKey, minQuantity int) ([]*domain.Box, error) {
	return r.filter(func(b *domain.Box) bool {
		return !b.IsInPallet && b.Quantity > 0 && b.Quantity >= minQuantity && b.GroupKey() == key
	}), nil
}

func (r memBoxes) FindMergeTarget(ctx context.Context, key domain.BoxGroupKey) (*domain.Box, error) {
	found := r.filter(func(b *domain.Box) bool {
		return !b.IsInPallet && b.LoadingSheetID == nil && b.GroupKey() == key
	})
	if len(found) == 0 {
		return nil, nil
	}
	return found[0], nil
}

func (r memBoxes) FindByPallet(ctx context.Context, palletID string) ([]*domain.Box, error) {
	return r.filter(func(b *domain.Box) bool {
		return b.PalletID != nil && *b.PalletID == palletID
	}), nil
}

func (r memBoxes) ReleasePallet(ctx context.Context, palletID string, now time.Time) (int64, error) {
	var n int64
	r.m.read(func(s *memState) {
		for _, b := range s.boxes {
			if b.PalletID != nil && *b.PalletID == palletID {
				b.Release(now)
				n++
			}
		}
	})
	return n, nil
}

func (r memBoxes) List(ctx context.Context, f domain.BoxFilter) ([]*domain.Box, error) {
	return r.filter(func(b *domain.Box) bool {
		if f.ColdRoomID != "" && b.ColdRoomID != f.ColdRoomID {
			return false
		}
		if f.PalletID != "" && (b.PalletID == nil || *b.PalletID != f.PalletID) {
			return false
		}
		if f.CountingRecordID != "" && (b.CountingRecordID == nil || *b.CountingRecordID != f.CountingRecordID) {
			return false
		}
		if f.InPallet != nil && b.IsInPallet != *f.InPallet {
			return false
		}
		if f.AvailableOnly && !b.IsAvailable() {
			return false
		}
		return true
	}), nil
}

type memPallets struct{ m *MemoryStore }

func (r memPallets) Create(ctx context.Context, p *domain.Pallet) error {
	cp := *p
	r.m.read(func(s *memState) { s.pallets[p.ID] = &cp })
	return nil
}

func (r memPallets) Delete(ctx context.Context, id string) error {
	var err error
	r.m.read(func(s *memState) {
		if _, ok := s.pallets[id]; !ok {
			err = domain.ErrPalletNotFound
			return
		}
		delete(s.pallets, id)
	})
	return err
}

func (r memPallets) FindByID(ctx context.Context, id string) (*domain.Pallet, error) {
	var out *domain.Pallet
	r.m.read(func(s *memState) {
		if p, ok := s.pallets[id]; ok {
			cp := *p
			out = &cp
		}
	})
	if out == nil {
		return nil, domain.ErrPalletNotFound
	}
	return out, nil
}

func (r memPallets) list(pred func(p *domain.Pallet) bool) []*domain.Pallet {
	var out []*domain.Pallet
	r.m.read(func(s *memState) {
		for _, p := range s.pallets {
			if pred(p) {
				cp := *p
				out = append(out, &cp)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (r memPallets) FindManualByColdRoom(ctx context.Context, coldRoomID string) ([]*domain.Pallet, error) {
	return r.list(func(p *domain.Pallet) bool { return p.IsManual && p.ColdRoomID == coldRoomID }), nil
}

func (r memPallets) List(ctx context.Context, coldRoomID string) ([]*domain.Pallet, error) {
	return r.list(func(p *domain.Pallet) bool { return coldRoomID == "" || p.ColdRoomID == coldRoomID }), nil
}

type memRecords struct{ m *MemoryStore }

func (r memRecords) Create(ctx context.Context, rec *domain.CountingRecord) error {
	docs, err := rec.EncodeDocuments()
	if err != nil {
		return err
	}
	cp := *rec
	r.m.read(func(s *memState) { s.records[rec.ID] = storedRecord{record: &cp, docs: docs} })
	return nil
}

func (r memRecords) Update(ctx context.Context, rec *domain.CountingRecord) error {
	if h := r.m.Hooks.CountingRecordUpdate; h != nil {
		if err := h(rec); err != nil {
			return err
		}
	}
	docs, err := rec.EncodeDocuments()
	if err != nil {
		return err
	}
	cp := *rec
	r.m.read(func(s *memState) {
		if _, ok := s.records[rec.ID]; !ok {
			err = domain.ErrCountingRecordNotFound
			return
		}
		s.records[rec.ID] = storedRecord{record: &cp, docs: docs}
	})
	return err
}

func decodeStored(sr storedRecord) *domain.CountingRecord {
	rec := *sr.record
	rec.DecodeDocuments(sr.docs)
	return &rec
}

func (r memRecords) FindByID(ctx context.Context, id string) (*domain.CountingRecord, error) {
	var out *domain.CountingRecord
	r.m.read(func(s *memState) {
		if sr, ok := s.records[id]; ok {
			out = decodeStored(sr)
		}
	})
	if out == nil {
		return nil, domain.ErrCountingRecordNotFound
	}
	return out, nil
}

func (r memRecords) ListForColdroom(ctx context.Context) ([]*domain.CountingRecord, error) {
	var out []*domain.CountingRecord
	r.m.read(func(s *memState) {
		for _, sr := range s.records {
			if sr.record.ForColdroom {
				out = append(out, decodeStored(sr))
			}
		}
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].SubmittedAt.After(out[j].SubmittedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

type memTemps struct{ m *MemoryStore }

func (r memTemps) Create(ctx context.Context, log *domain.TemperatureLog) error {
	cp := *log
	r.m.read(func(s *memState) { s.temps = append(s.temps, &cp) })
	return nil
}

func (r memTemps) List(ctx context.Context, coldRoomID string, limit int) ([]*domain.TemperatureLog, error) {
	var out []*domain.TemperatureLog
	r.m.read(func(s *memState) {
		for i := len(s.temps) - 1; i >= 0; i-- {
			t := s.temps[i]
			if coldRoomID != "" && t.ColdRoomID != coldRoomID {
				continue
			}
			cp := *t
			out = append(out, &cp)
			if limit > 0 && len(out) == limit {
				return
			}
		}
	})
	return out, nil
}

func (r memTemps) Latest(ctx context.Context, coldRoomID string) (*domain.TemperatureLog, error) {
	logs, _ := r.List(ctx, coldRoomID, 1)
	if len(logs) == 0 {
		return nil, nil
	}
	return logs[0], nil
}

type memRepacking struct{ m *MemoryStore }

func (r memRepacking) Create(ctx context.Context, rec *domain.RepackingRecord) error {
	if h := r.m.Hooks.RepackingCreate; h != nil {
		if err := h(rec); err != nil {
			return err
		}
	}
	cp := *rec
	r.m.read(func(s *memState) { s.repacking = append(s.repacking, &cp) })
	return nil
}

func (r memRepacking) List(ctx context.Context, coldRoomID string, limit int) ([]*domain.RepackingRecord, error) {
	var out []*domain.RepackingRecord
	r.m.read(func(s *memState) {
		for i := len(s.repacking) - 1; i >= 0; i-- {
			rec := s.repacking[i]
			if coldRoomID != "" && rec.ColdRoomID != coldRoomID {
				continue
			}
			cp := *rec
			out = append(out, &cp)
			if limit > 0 && len(out) == limit {
				return
			}
		}
	})
	return out, nil
}

type memEvents struct{ m *MemoryStore }

func (r memEvents) Record(ctx context.Context, events ...domain.DomainEvent) error {
	r.m.read(func(s *memState) { s.events = append(s.events, events...) })
	return nil
}
