package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/lcx/flightrpc/client"
	"github.com/lcx/flightrpc/message"
)

// FlightAPI is the part of *client.Client the menu drives.
type FlightAPI interface {
	FlightIDs(ctx context.Context, source, destination string) ([]uint32, error)
	Summary(ctx context.Context, flightID uint32) (message.SummaryRes, error)
	ReserveSeats(ctx context.Context, flightID, seats uint32) error
	Subscribe(ctx context.Context, flightID, intervalSec uint32) error
	Monitor(ctx context.Context, interval time.Duration, onUpdate func(message.SeatUpdate)) error
	EarliestFlights(ctx context.Context, source string) ([]uint32, error)
	ReserveBaggage(ctx context.Context, flightID, kg uint32) error
}

const departureLayout = "2006-01-02 15:04:05 -07:00"

// Menu is the interactive console of flightcli.
type Menu struct {
	api FlightAPI
	in  *bufio.Scanner
	out io.Writer
	loc *time.Location
}

// NewMenu reads choices from in and writes results to out.
func NewMenu(api FlightAPI, in io.Reader, out io.Writer) *Menu {
	return &Menu{
		api: api,
		in:  bufio.NewScanner(in),
		out: out,
		loc: time.Local,
	}
}

func (m *Menu) printf(format string, args ...any) {
	fmt.Fprintf(m.out, format, args...)
}

func (m *Menu) banner(title string) {
	const width = 40
	pad := strings.Repeat("=", (width-len(title))/2)
	m.printf("\n%s%s%s\n", pad, title, pad)
}

func (m *Menu) showChoices() {
	m.printf("\n")
	m.banner("")
	m.printf("Welcome to the application,\nChoose a service below!\n")
	m.banner("Main Services")
	m.printf("1. Get Flight Identifiers\n2. Get Flight Summary\n3. Reserve Seats\n4. Monitor Seat Availability\n")
	m.banner("Additional Services")
	m.printf("5. Get Earliest Flight Identifiers\n6. Reserve Baggage\n")
	m.banner("Danger Zone")
	m.printf("7. Exit\n")
}

// prompt prints question and returns the next input line. io.EOF means input ended.
func (m *Menu) prompt(question string) (string, error) {
	if question != "" {
		m.printf("%s\n", question)
	}
	if !m.in.Scan() {
		if err := m.in.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return strings.TrimSpace(m.in.Text()), nil
}

// Run loops over the menu until the user exits, input ends or ctx is done.
func (m *Menu) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		m.showChoices()
		line, err := m.prompt("")
		if err != nil {
			return ignoreEOF(err)
		}

		choice, err := strconv.Atoi(line)
		if err != nil {
			m.printf("Invalid choice, please try again.\n")
			continue
		}

		switch choice {
		case 1:
			err = m.flightIDs(ctx)
		case 2:
			err = m.summary(ctx)
		case 3:
			err = m.reserveSeats(ctx)
		case 4:
			err = m.monitor(ctx)
		case 5:
			err = m.earliest(ctx)
		case 6:
			err = m.reserveBaggage(ctx)
		case 7:
			return nil
		default:
			m.printf("Invalid choice, please try again.\n")
			continue
		}

		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			return nil
		case ctx.Err() != nil:
			return ctx.Err()
		case errors.Is(err, client.ErrSendFailed):
			m.printf("Error: %v\n", err)
			return WrapExitError(ExitFailure, "send failed", err)
		default:
			m.printf("Error: %v\n", err)
		}
	}
}

func ignoreEOF(err error) error {
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func (m *Menu) readPlace(question string, notAlpha error) (string, error) {
	line, err := m.prompt(question)
	if err != nil {
		return "", err
	}
	return parsePlace(line, notAlpha)
}

func (m *Menu) readFlightID() (uint32, error) {
	line, err := m.prompt("Enter flight identifier:")
	if err != nil {
		return 0, err
	}
	return parseU32(line, ErrInvalidFlightID)
}

func (m *Menu) printIDs(ids []uint32) {
	m.printf("Flight IDs: %v\n", ids)
}

func (m *Menu) flightIDs(ctx context.Context) error {
	source, err := m.readPlace("Enter source:", ErrSourceNotAlpha)
	if err != nil {
		return err
	}
	destination, err := m.readPlace("Enter destination:", ErrDestinationNotAlpha)
	if err != nil {
		return err
	}
	ids, err := m.api.FlightIDs(ctx, source, destination)
	if err != nil {
		return err
	}
	m.printIDs(ids)
	return nil
}

func (m *Menu) summary(ctx context.Context) error {
	id, err := m.readFlightID()
	if err != nil {
		return err
	}
	res, err := m.api.Summary(ctx, id)
	if err != nil {
		return err
	}
	departure := time.Unix(int64(res.DepartureTime), 0).In(m.loc)
	m.printf("Departure time: %s\n", departure.Format(departureLayout))
	m.printf("Airfare: %v\n", res.Airfare)
	m.printf("Seats: %d\n", res.Seats)
	m.printf("Remaining baggage capacity: %d kg\n", res.BaggageCapacityKg)
	return nil
}

func (m *Menu) reserveSeats(ctx context.Context) error {
	idLine, err := m.prompt("Enter flight identifier:")
	if err != nil {
		return err
	}
	seatsLine, err := m.prompt("Enter number of seats to reserve:")
	if err != nil {
		return err
	}
	id, err := parseU32(idLine, ErrInvalidFlightID)
	if err != nil {
		return err
	}
	seats, err := parseU32(seatsLine, ErrInvalidSeats)
	if err != nil {
		return err
	}
	if err := m.api.ReserveSeats(ctx, id, seats); err != nil {
		return err
	}
	m.printf("Reservation succeeded\n")
	return nil
}

func (m *Menu) monitor(ctx context.Context) error {
	idLine, err := m.prompt("Enter flight identifier:")
	if err != nil {
		return err
	}
	intervalLine, err := m.prompt(fmt.Sprintf("Enter monitor interval, up to %d seconds (1 year):", MaxMonitorInterval))
	if err != nil {
		return err
	}
	id, err := parseU32(idLine, ErrInvalidFlightID)
	if err != nil {
		return err
	}
	sec, err := parseInterval(intervalLine)
	if err != nil {
		return err
	}

	if err := m.api.Subscribe(ctx, id, sec); err != nil {
		return err
	}
	m.printf("Subscription succeeded. Now listening for %d seconds...\n", sec)
	err = m.api.Monitor(ctx, time.Duration(sec)*time.Second, func(u message.SeatUpdate) {
		m.printf("EVENT: Flight %d has %d seats left\n", u.FlightID, u.Seats)
	})
	if err != nil {
		return err
	}
	m.printf("Monitor interval ended\n")
	return nil
}

func (m *Menu) earliest(ctx context.Context) error {
	source, err := m.readPlace("Enter source:", ErrSourceNotAlpha)
	if err != nil {
		return err
	}
	ids, err := m.api.EarliestFlights(ctx, source)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		m.printf("No flights found for the given source.\n")
		return nil
	}
	m.printIDs(ids)
	return nil
}

func (m *Menu) reserveBaggage(ctx context.Context) error {
	idLine, err := m.prompt("Enter flight identifier:")
	if err != nil {
		return err
	}
	kgLine, err := m.prompt("Enter baggage weight in kg to reserve:")
	if err != nil {
		return err
	}
	id, err := parseU32(idLine, ErrInvalidFlightID)
	if err != nil {
		return err
	}
	kg, err := parseBaggage(kgLine)
	if err != nil {
		return err
	}
	if err := m.api.ReserveBaggage(ctx, id, kg); err != nil {
		return err
	}
	m.printf("Reservation of baggage succeeded\n")
	return nil
}
