package l1capture

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/banshee-data/scavenger/internal/fsutil"
	"github.com/banshee-data/scavenger/internal/scavenger"
)

// ExtractStats counts what ExtractProbeRequests saw.
type ExtractStats struct {
	Packets       int
	ProbeRequests int
	NoSignal      int
	Malformed     int
}

// InformationElement is one tagged parameter of a management frame.
type InformationElement struct {
	ID   layers.Dot11InformationElementID
	Info []byte
}

// ExtractProbeRequests reads an offline radiotap pcap and returns one
// DetectionRecord per probe request. The transmitter address becomes the
// claimed id and the remaining tagged parameters (SSID excluded) become the
// information element fingerprint.
func ExtractProbeRequests(r io.Reader, snifferID string) ([]scavenger.DetectionRecord, ExtractStats, error) {
	var stats ExtractStats

	reader, err := pcapgo.NewReader(r)
	if err != nil {
		return nil, stats, fmt.Errorf("open pcap: %w", err)
	}
	if lt := reader.LinkType(); lt != layers.LinkTypeIEEE80211Radio {
		return nil, stats, fmt.Errorf("unsupported link type %v: need radiotap (802.11 monitor mode)", lt)
	}

	var records []scavenger.DetectionRecord
	for {
		data, ci, err := reader.ReadPacketData()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return records, stats, fmt.Errorf("read packet %d: %w", stats.Packets+1, err)
		}
		stats.Packets++

		packet := gopacket.NewPacket(data, layers.LinkTypeIEEE80211Radio, gopacket.Default)
		rec, ok := probeRequestRecord(packet, &stats)
		if !ok {
			continue
		}
		rec.SnifferID = snifferID
		rec.EpochNs = ci.Timestamp.UnixNano()
		records = append(records, rec)
	}

	diagf("pcap %s: %d packets, %d probe requests, %d without signal, %d malformed",
		snifferID, stats.Packets, stats.ProbeRequests, stats.NoSignal, stats.Malformed)
	return records, stats, nil
}

func probeRequestRecord(packet gopacket.Packet, stats *ExtractStats) (scavenger.DetectionRecord, bool) {
	var rec scavenger.DetectionRecord

	l := packet.Layer(layers.LayerTypeDot11)
	if l == nil {
		return rec, false
	}
	dot11, _ := l.(*layers.Dot11)
	if dot11 == nil || dot11.Type != layers.Dot11TypeMgmtProbeReq {
		return rec, false
	}
	stats.ProbeRequests++

	rt, _ := packet.Layer(layers.LayerTypeRadioTap).(*layers.RadioTap)
	if rt == nil || !rt.Present.DBMAntennaSignal() {
		stats.NoSignal++
		return rec, false
	}

	var body []byte
	if probe, ok := packet.Layer(layers.LayerTypeDot11MgmtProbeReq).(*layers.Dot11MgmtProbeReq); ok && probe != nil {
		body = probe.LayerContents()
	} else {
		body = dot11.LayerPayload()
	}
	elements, err := ParseInformationElements(body)
	if err != nil {
		stats.Malformed++
		tracef("skipping probe request from %s: %v", dot11.Address2, err)
		return rec, false
	}

	rec.RSSI = int(rt.DBMAntennaSignal)
	rec.ClaimedID = dot11.Address2.String()
	rec.InformationElement = FingerprintElements(elements)
	return rec, true
}

// ParseInformationElements walks the tag-length-value list of a management
// frame body.
func ParseInformationElements(body []byte) ([]InformationElement, error) {
	var out []InformationElement
	for i := 0; i < len(body); {
		if i+2 > len(body) {
			return out, fmt.Errorf("truncated element header at offset %d", i)
		}
		id := layers.Dot11InformationElementID(body[i])
		n := int(body[i+1])
		i += 2
		if i+n > len(body) {
			return out, fmt.Errorf("element %d overruns body: need %d bytes at offset %d", id, n, i)
		}
		out = append(out, InformationElement{ID: id, Info: body[i : i+n]})
		i += n
	}
	return out, nil
}

// FingerprintElements hashes the capability elements of a probe request.
// The SSID element is left out because devices vary it between requests;
// elements are ordered by ID so reordering does not change the result.
func FingerprintElements(elements []InformationElement) string {
	kept := make([]InformationElement, 0, len(elements))
	for _, e := range elements {
		if e.ID == layers.Dot11InformationElementIDSSID {
			continue
		}
		kept = append(kept, e)
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].ID < kept[j].ID })

	h := md5.New()
	for _, e := range kept {
		h.Write([]byte{byte(e.ID), byte(len(e.Info))})
		h.Write(e.Info)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// ExtractFile runs ExtractProbeRequests over the pcap at path.
func ExtractFile(fsys fsutil.FileSystem, path, snifferID string) ([]scavenger.DetectionRecord, ExtractStats, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, ExtractStats{}, err
	}
	defer f.Close()
	return ExtractProbeRequests(f, snifferID)
}
