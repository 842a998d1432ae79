package message

import "github.com/lcx/flightrpc/codec"

// FlightIDsReq asks for every flight between two places.
type FlightIDsReq struct {
	Source      string
	Destination string
}

func (r *FlightIDsReq) Marshal() []byte {
	buf := codec.AppendString(nil, r.Source)
	return codec.AppendString(buf, r.Destination)
}

func (r *FlightIDsReq) Unmarshal(buf []byte) (err error) {
	var off int
	if r.Source, off, err = codec.String(buf, 0); err != nil {
		return err
	}
	r.Destination, _, err = codec.String(buf, off)
	return err
}

// FlightIDsRes lists flight ids. It is the response of services 1 and 5.
type FlightIDsRes struct {
	FlightIDs []uint32
}

func (r *FlightIDsRes) Marshal() []byte {
	return codec.AppendU32Array(nil, r.FlightIDs)
}

func (r *FlightIDsRes) Unmarshal(buf []byte) (err error) {
	r.FlightIDs, _, err = codec.U32Array(buf, 0)
	return err
}

// FlightReq carries a single flight id.
type FlightReq struct {
	FlightID uint32
}

func (r *FlightReq) Marshal() []byte {
	return codec.AppendU32(nil, r.FlightID)
}

func (r *FlightReq) Unmarshal(buf []byte) (err error) {
	r.FlightID, _, err = codec.U32(buf, 0)
	return err
}

// SummaryRes describes one flight.
type SummaryRes struct {
	DepartureTime     uint32
	Airfare           float32
	Seats             uint32
	BaggageCapacityKg uint32
}

func (r *SummaryRes) Marshal() []byte {
	buf := codec.AppendU32(make([]byte, 0, 16), r.DepartureTime)
	buf = codec.AppendF32(buf, r.Airfare)
	buf = codec.AppendU32(buf, r.Seats)
	return codec.AppendU32(buf, r.BaggageCapacityKg)
}

func (r *SummaryRes) Unmarshal(buf []byte) (err error) {
	off := 0
	if r.DepartureTime, off, err = codec.U32(buf, off); err != nil {
		return err
	}
	if r.Airfare, off, err = codec.F32(buf, off); err != nil {
		return err
	}
	if r.Seats, off, err = codec.U32(buf, off); err != nil {
		return err
	}
	r.BaggageCapacityKg, _, err = codec.U32(buf, off)
	return err
}

// FlightAmountReq pairs a flight id with an amount. The amount is a seat
// count for service 3, an interval in seconds for service 4 and a weight
// in kg for service 6.
type FlightAmountReq struct {
	FlightID uint32
	Amount   uint32
}

func (r *FlightAmountReq) Marshal() []byte {
	buf := codec.AppendU32(make([]byte, 0, 8), r.FlightID)
	return codec.AppendU32(buf, r.Amount)
}

func (r *FlightAmountReq) Unmarshal(buf []byte) (err error) {
	var off int
	if r.FlightID, off, err = codec.U32(buf, 0); err != nil {
		return err
	}
	r.Amount, _, err = codec.U32(buf, off)
	return err
}

// SourceReq asks for the earliest flights leaving a place.
type SourceReq struct {
	Source string
}

func (r *SourceReq) Marshal() []byte {
	return codec.AppendString(nil, r.Source)
}

func (r *SourceReq) Unmarshal(buf []byte) (err error) {
	r.Source, _, err = codec.String(buf, 0)
	return err
}

// SeatUpdate is the body of a TagSeatUpdate push.
type SeatUpdate struct {
	FlightID uint32
	Seats    uint32
}

func (u *SeatUpdate) Marshal() []byte {
	buf := codec.AppendU32(make([]byte, 0, 8), u.FlightID)
	return codec.AppendU32(buf, u.Seats)
}

func (u *SeatUpdate) Unmarshal(buf []byte) (err error) {
	var off int
	if u.FlightID, off, err = codec.U32(buf, 0); err != nil {
		return err
	}
	u.Seats, _, err = codec.U32(buf, off)
	return err
}
