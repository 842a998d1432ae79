// Package flight holds the in-memory flight table the services read and reserve against.
package flight

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"golang.org/x/text/cases"
	"gopkg.in/yaml.v3"
)

var (
	ErrFlightNotFound   = errors.New("flight not found")
	ErrNotEnoughSeats   = errors.New("not enough seats available")
	ErrNotEnoughBaggage = errors.New("not enough baggage capacity available")
	ErrDuplicateFlight  = errors.New("duplicate flight id")
)

// ShortageError is returned when a reservation asks for more than is left.
// It unwraps to ErrNotEnoughSeats or ErrNotEnoughBaggage.
type ShortageError struct {
	Err       error
	Requested uint32
	Available uint32
}

func (e *ShortageError) Error() string {
	return fmt.Sprintf("%v: requested %d, available %d", e.Err, e.Requested, e.Available)
}

func (e *ShortageError) Unwrap() error {
	return e.Err
}

// Flight is one row of the table. Seats and BaggageCapacityKg only ever decrease.
type Flight struct {
	ID                uint32  `yaml:"id"`
	Source            string  `yaml:"source"`
	Destination       string  `yaml:"destination"`
	DepartureTime     uint32  `yaml:"departureTime"`
	Seats             uint32  `yaml:"seats"`
	Airfare           float32 `yaml:"airfare"`
	BaggageCapacityKg uint32  `yaml:"baggageCapacityKg"`
}

// Store is safe for concurrent use. One mutex guards the whole table so a
// reservation's check and decrement are atomic.
type Store struct {
	mu      sync.RWMutex
	flights map[uint32]*entry
}

// entry keeps the case-folded route names next to the flight.
type entry struct {
	Flight
	source      string
	destination string
}

// NewStore builds a store from flights. Ids must be unique.
func NewStore(flights []Flight) (*Store, error) {
	s := &Store{flights: make(map[uint32]*entry, len(flights))}
	fold := cases.Fold()
	for _, f := range flights {
		if _, ok := s.flights[f.ID]; ok {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateFlight, f.ID)
		}
		s.flights[f.ID] = &entry{
			Flight:      f,
			source:      fold.String(f.Source),
			destination: fold.String(f.Destination),
		}
	}
	return s, nil
}

// Get returns a copy of the flight with id.
func (s *Store) Get(id uint32) (Flight, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.flights[id]
	if !ok {
		return Flight{}, fmt.Errorf("%w: %d", ErrFlightNotFound, id)
	}
	return f.Flight, nil
}

// FindByRoute returns the ids of every flight from source to destination in
// ascending order. Place names compare case-insensitively.
func (s *Store) FindByRoute(source, destination string) []uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fold := cases.Fold()
	source, destination = fold.String(source), fold.String(destination)

	ids := make([]uint32, 0)
	for id, f := range s.flights {
		if f.source == source && f.destination == destination {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// EarliestFromSource returns, in ascending order, the ids of the flights
// leaving source with seats left that share the earliest departure time
// among them. The result is empty when no such flight exists.
func (s *Store) EarliestFromSource(source string) []uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	source = cases.Fold().String(source)

	ids := make([]uint32, 0)
	var earliest uint32
	for id, f := range s.flights {
		if f.Seats == 0 || f.source != source {
			continue
		}
		switch {
		case len(ids) == 0 || f.DepartureTime < earliest:
			earliest = f.DepartureTime
			ids = append(ids[:0], id)
		case f.DepartureTime == earliest:
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ReserveSeats takes n seats and returns the seats left. Nothing changes
// when fewer than n seats remain.
func (s *Store) ReserveSeats(id, n uint32) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.flights[id]
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrFlightNotFound, id)
	}
	if n > f.Seats {
		return f.Seats, &ShortageError{Err: ErrNotEnoughSeats, Requested: n, Available: f.Seats}
	}
	f.Seats -= n
	return f.Seats, nil
}

// ReserveBaggage takes kg of baggage capacity and returns the capacity left.
func (s *Store) ReserveBaggage(id, kg uint32) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.flights[id]
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrFlightNotFound, id)
	}
	if kg > f.BaggageCapacityKg {
		return f.BaggageCapacityKg, &ShortageError{Err: ErrNotEnoughBaggage, Requested: kg, Available: f.BaggageCapacityKg}
	}
	f.BaggageCapacityKg -= kg
	return f.BaggageCapacityKg, nil
}

// Snapshot returns a copy of every flight ordered by id.
func (s *Store) Snapshot() []Flight {
	s.mu.RLock()
	out := make([]Flight, 0, len(s.flights))
	for _, f := range s.flights {
		out = append(out, f.Flight)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of flights.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.flights)
}

type table struct {
	Flights []Flight `yaml:"flights"`
}

// LoadFile reads a YAML document with a top level "flights" list.
func LoadFile(path string) ([]Flight, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read flights file: %w", err)
	}
	var t table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse flights file %s: %w", path, err)
	}
	return t.Flights, nil
}

// DefaultFlights is the demo table used when no flights file is configured.
func DefaultFlights() []Flight {
	return []Flight{
		{ID: 1, Source: "A", Destination: "B", DepartureTime: 1700000000, Seats: 10, Airfare: 199.5, BaggageCapacityKg: 100},
		{ID: 2, Source: "A", Destination: "B", DepartureTime: 1700000000, Seats: 20, Airfare: 249, BaggageCapacityKg: 200},
		{ID: 3, Source: "C", Destination: "D", DepartureTime: 1800000000, Seats: 30, Airfare: 99.9, BaggageCapacityKg: 150},
		{ID: 100, Source: "Singapore", Destination: "Tokyo", DepartureTime: 1767225600, Seats: 180, Airfare: 520, BaggageCapacityKg: 4000},
		{ID: 101, Source: "Singapore", Destination: "Tokyo", DepartureTime: 1767261600, Seats: 0, Airfare: 480, BaggageCapacityKg: 4000},
		{ID: 102, Source: "Tokyo", Destination: "Singapore", DepartureTime: 1767312000, Seats: 150, Airfare: 505.25, BaggageCapacityKg: 3500},
	}
}
