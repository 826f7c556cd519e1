package protocol

import (
	"encoding/json"

	"github.com/juju/errors"
)

// textRecord is the JSON text form. Pointer fields are mandatory on decode.
type textRecord struct {
	Version   int            `json:"v"`
	MAC       *string        `json:"mac"`
	Timestamp uint32         `json:"ts"`
	Distance  *int32         `json:"distance_mm"`
	BatteryMV *uint16        `json:"vcc_bat_mv"`
	RSSI      int8           `json:"rssi"`
	Flags     uint8          `json:"flags"`
	RLE       uint8          `json:"rle"`
	Aggregate *textAggregate `json:"agg,omitempty"`
	Health    *textHealth    `json:"health,omitempty"`
}

type textAggregate struct {
	Min   int16 `json:"min"`
	Max   int16 `json:"max"`
	Avg   int16 `json:"avg"`
	Count uint8 `json:"n"`
}

type textHealth struct {
	UptimeS      uint32 `json:"uptime_s"`
	FreeKiB      uint32 `json:"free_kib"`
	TempC        int8   `json:"temp_c"`
	TxOK         uint16 `json:"tx_ok"`
	TxFail       uint16 `json:"tx_fail"`
	SensorErrors uint16 `json:"sensor_err"`
}

// EncodeText serializes r as a single-line JSON object.
func EncodeText(r Record) ([]byte, error) {
	mac := r.Device.String()
	dist := r.Distance
	mv := r.BatteryMV
	tr := textRecord{
		Version:   int(Version),
		MAC:       &mac,
		Timestamp: r.Timestamp,
		Distance:  &dist,
		BatteryMV: &mv,
		RSSI:      r.Signal,
		Flags:     uint8(r.normalizedFlags()),
		RLE:       r.RunCount,
	}
	if a := r.Aggregate; a != nil {
		tr.Aggregate = &textAggregate{Min: a.Min, Max: a.Max, Avg: a.Avg, Count: a.Count}
	}
	if h := r.Health; h != nil {
		tr.Health = &textHealth{
			UptimeS:      h.UptimeS,
			FreeKiB:      h.FreeKiB,
			TempC:        h.TempC,
			TxOK:         h.TxOK,
			TxFail:       h.TxFail,
			SensorErrors: h.SensorErrors,
		}
	}
	b, err := json.Marshal(tr)
	if err != nil {
		return nil, errors.Annotate(err, "encode text record")
	}
	return b, nil
}

// DecodeText parses the JSON text form. Unknown keys are ignored;
// mac, distance_mm and vcc_bat_mv are required.
func DecodeText(b []byte) (Record, error) {
	var r Record
	var tr textRecord
	if err := json.Unmarshal(b, &tr); err != nil {
		return r, errors.Annotatef(ErrMalformedFrame, "text record: %v", err)
	}
	switch {
	case tr.MAC == nil:
		return r, errors.Annotate(ErrMalformedFrame, "missing mac")
	case tr.Distance == nil:
		return r, errors.Annotate(ErrMalformedFrame, "missing distance_mm")
	case tr.BatteryMV == nil:
		return r, errors.Annotate(ErrMalformedFrame, "missing vcc_bat_mv")
	}
	id, err := ParseDeviceID(*tr.MAC)
	if err != nil {
		return r, errors.Annotatef(ErrMalformedFrame, "mac: %v", err)
	}

	r = Record{
		Device:    id,
		Timestamp: tr.Timestamp,
		Distance:  *tr.Distance,
		BatteryMV: *tr.BatteryMV,
		Signal:    tr.RSSI,
		Flags:     Flags(tr.Flags) &^ (FlagAggregated | FlagHealth),
		RunCount:  tr.RLE,
	}
	if a := tr.Aggregate; a != nil {
		r.Aggregate = &Aggregate{Min: a.Min, Max: a.Max, Avg: a.Avg, Count: a.Count}
	}
	if h := tr.Health; h != nil {
		r.Health = &Health{
			UptimeS:      h.UptimeS,
			FreeKiB:      h.FreeKiB,
			TempC:        h.TempC,
			TxOK:         h.TxOK,
			TxFail:       h.TxFail,
			SensorErrors: h.SensorErrors,
		}
	}
	r.Flags = r.normalizedFlags()
	return r, nil
}
