package region

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	iface "github.com/animeshchandra-121/Smart-Traffic-Analyzer/interface"
	"github.com/animeshchandra-121/Smart-Traffic-Analyzer/logger"
	"go.uber.org/zap"
)

// document is the on-disk form: {"A": [[x,y],[x,y],[x,y],[x,y]], ...}
type document map[string][][2]int

// Store keeps one region per signal, backed by a JSON document.
// Reads take a snapshot; pipelines never see later upserts mid-video.
type Store struct {
	path    string
	mu      sync.RWMutex
	regions map[iface.SignalID]iface.Polygon
}

func NewStore(path string) *Store {
	return &Store{
		path:    path,
		regions: map[iface.SignalID]iface.Polygon{},
	}
}

// Load replaces the in-memory regions with the document's content.
// A missing file is an empty store.
func (s *Store) Load() error {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Log().Warn("region document not found, starting empty", zap.String("path", s.path))
		s.mu.Lock()
		s.regions = map[iface.SignalID]iface.Polygon{}
		s.mu.Unlock()
		return nil
	}
	if err != nil {
		return fmt.Errorf("read regions: %w", err)
	}
	doc := document{}
	if err := json.Unmarshal(b, &doc); err != nil {
		return fmt.Errorf("parse regions %s: %w", s.path, err)
	}
	regions := make(map[iface.SignalID]iface.Polygon, len(doc))
	for key, pts := range doc {
		id, err := iface.ParseSignalID(key)
		if err != nil {
			return fmt.Errorf("regions %s: %w", s.path, err)
		}
		regions[id] = FromPairs(pts)
	}
	s.mu.Lock()
	s.regions = regions
	s.mu.Unlock()
	logger.Log().Info("regions loaded", zap.String("path", s.path), zap.Int("count", len(regions)))
	return nil
}

// Get returns a copy of the region for id. A missing region or one without exactly
// 4 points is ErrInvalidRegion.
func (s *Store) Get(id iface.SignalID) (iface.Polygon, error) {
	s.mu.RLock()
	poly, ok := s.regions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: no region defined for signal %s", iface.ErrInvalidRegion, id)
	}
	if err := Validate(poly); err != nil {
		return nil, fmt.Errorf("signal %s: %w", id, err)
	}
	return append(iface.Polygon(nil), poly...), nil
}

// All returns a copy of every stored region, valid or not.
func (s *Store) All() map[iface.SignalID]iface.Polygon {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[iface.SignalID]iface.Polygon, len(s.regions))
	for id, poly := range s.regions {
		out[id] = append(iface.Polygon(nil), poly...)
	}
	return out
}

// Upsert validates poly, stores it under id and rewrites the document.
func (s *Store) Upsert(id iface.SignalID, poly iface.Polygon) error {
	if !id.Valid() {
		return fmt.Errorf("invalid signal id %q", id)
	}
	if err := Validate(poly); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	next := make(map[iface.SignalID]iface.Polygon, len(s.regions)+1)
	for k, v := range s.regions {
		next[k] = v
	}
	next[id] = append(iface.Polygon(nil), poly...)
	if err := s.persist(next); err != nil {
		return err
	}
	s.regions = next
	logger.Log().Info("region saved", zap.String("signal", string(id)), zap.Any("points", poly))
	return nil
}

func (s *Store) persist(regions map[iface.SignalID]iface.Polygon) error {
	doc := make(document, len(regions))
	ids := make([]string, 0, len(regions))
	for id, poly := range regions {
		doc[string(id)] = ToPairs(poly)
		ids = append(ids, string(id))
	}
	sort.Strings(ids)
	b, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create region dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".areas-*.json")
	if err != nil {
		return fmt.Errorf("write regions: %w", err)
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write regions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write regions: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace regions: %w", err)
	}
	logger.Log().Debug("region document written", zap.String("path", s.path), zap.Strings("signals", ids))
	return nil
}

// FromPairs converts [[x,y],...] pairs into a polygon.
func FromPairs(pts [][2]int) iface.Polygon {
	poly := make(iface.Polygon, len(pts))
	for i, p := range pts {
		poly[i] = image.Pt(p[0], p[1])
	}
	return poly
}

// ToPairs is the inverse of FromPairs.
func ToPairs(poly iface.Polygon) [][2]int {
	pts := make([][2]int, len(poly))
	for i, p := range poly {
		pts[i] = [2]int{p.X, p.Y}
	}
	return pts
}
