// Package publisher broadcasts tracked vehicle positions on NATS.
package publisher

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/transit-explorer/core/internal/models"
)

// SubjectPrefix roots every vehicle subject: <prefix>.<route>.<vehicle>
const SubjectPrefix = "transit.vehicles"

type Metrics interface {
	IncPublished()
	IncPublishErr()
	SetConnected(connected bool)
}

// conn is the subset of *nats.Conn the publisher uses
type conn interface {
	Publish(subject string, data []byte) error
	Drain() error
	Close()
}

type NATSPublisher struct {
	nc      conn
	metrics Metrics
}

func NewNATSPublisher(url string, m Metrics) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("transit-poller"),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if m != nil {
				m.SetConnected(false)
			}
			log.Printf("Publisher: nats disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.SetConnected(true)
			}
			log.Printf("Publisher: nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if m != nil {
				m.SetConnected(false)
			}
			log.Printf("Publisher: nats closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	if m != nil {
		m.SetConnected(true)
	}
	return &NATSPublisher{nc: nc, metrics: m}, nil
}

func (p *NATSPublisher) Close() {
	if p.nc != nil {
		p.nc.Drain()
		p.nc.Close()
	}
}

// PositionMessage is the JSON payload of one vehicle update
type PositionMessage struct {
	VehicleID string    `json:"vehicleId"`
	RouteID   string    `json:"routeId"`
	Timestamp time.Time `json:"timestamp"`
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	Bearing   *float64  `json:"bearing,omitempty"`
	Speed     *float64  `json:"speed,omitempty"`
	IsHalted  bool      `json:"isHalted"`
}

// PublishPositions sends one message per vehicle and returns the first error
// after attempting all of them.
func (p *NATSPublisher) PublishPositions(positions []models.VehiclePosition) error {
	var firstErr error
	for _, v := range positions {
		if err := p.publish(v); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (p *NATSPublisher) publish(v models.VehiclePosition) error {
	subject := Subject(v.RouteID, v.VehicleID)
	b, err := json.Marshal(PositionMessage{
		VehicleID: v.VehicleID,
		RouteID:   v.RouteID,
		Timestamp: v.Timestamp,
		Lat:       v.Latitude,
		Lon:       v.Longitude,
		Bearing:   v.Bearing,
		Speed:     v.Speed,
		IsHalted:  v.IsHalted,
	})
	if err != nil {
		return err
	}

	err = p.nc.Publish(subject, b)
	if p.metrics != nil {
		if err != nil {
			p.metrics.IncPublishErr()
		} else {
			p.metrics.IncPublished()
		}
	}
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", subject, err)
	}
	return nil
}

// Subject builds the subject for one vehicle
func Subject(routeID, vehicleID string) string {
	return fmt.Sprintf("%s.%s.%s", SubjectPrefix, subjectToken(routeID), subjectToken(vehicleID))
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS tokens cannot contain spaces, '>', '*' or '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
