package view

import (
	"github.com/gofrs/uuid/v5"

	"github.com/and161185/c3ds-console/internal/model"
)

// DeviceGroup is the feed of one device, newest first.
type DeviceGroup struct {
	DeviceID   uuid.UUID
	DeviceName string
	Location   *model.GeoPoint
	Messages   []model.Message
	Alerts     int
}

// Level grades the group by its alert count.
func (g DeviceGroup) Level() model.AlertLevel { return model.LevelForAlerts(g.Alerts) }

// Latest is the newest message of the group.
func (g DeviceGroup) Latest() model.Message { return g.Messages[0] }

// GroupByDevice groups a newest-first feed per device. Groups are ordered
// by their newest message and keep the feed order inside.
func GroupByDevice(ms []model.Message) []DeviceGroup {
	idx := map[uuid.UUID]int{}
	var out []DeviceGroup
	for _, m := range ms {
		i, ok := idx[m.DeviceID]
		if !ok {
			i = len(out)
			idx[m.DeviceID] = i
			out = append(out, DeviceGroup{DeviceID: m.DeviceID, DeviceName: m.DeviceName, Location: m.DeviceLocation})
		}
		out[i].Messages = append(out[i].Messages, m)
		if m.Type == model.MessageAlert {
			out[i].Alerts++
		}
	}
	return out
}

// Mappable keeps the devices that have a location.
func Mappable(ds []model.Device) []model.Device {
	out := make([]model.Device, 0, len(ds))
	for _, d := range ds {
		if d.Location != nil {
			out = append(out, d)
		}
	}
	return out
}
