package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/scavenger/internal/scavenger/l1capture"
)

// probeFrame is a radiotap-wrapped probe request from ta with one rates
// element.
func probeFrame(signal int8, ta []byte) []byte {
	frame := []byte{0x00, 0x00, 0x09, 0x00, 0x20, 0x00, 0x00, 0x00, byte(signal)}
	frame = append(frame, 0x40, 0x00, 0x00, 0x00)
	frame = append(frame, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff)
	frame = append(frame, ta...)
	frame = append(frame, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff)
	frame = append(frame, 0x10, 0x00)
	return append(frame, 0x01, 0x02, 0x02, 0x04)
}

func writeCapture(t *testing.T, path string, n int) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := pcapgo.NewWriter(f)
	require.NoError(t, w.WriteFileHeader(65536, layers.LinkTypeIEEE80211Radio))
	t0 := time.Unix(1700000000, 0)
	ta := []byte{0xda, 0xa1, 0x19, 0x00, 0x00, 0x01}
	for i := 0; i < n; i++ {
		data := probeFrame(int8(-40-i), ta)
		ci := gopacket.CaptureInfo{Timestamp: t0.Add(time.Duration(i) * time.Second), CaptureLength: len(data), Length: len(data)}
		require.NoError(t, w.WritePacket(ci, data))
	}
}

func TestExtract(t *testing.T) {
	dir := t.TempDir()
	pcapPath := filepath.Join(dir, "ap3.pcap")
	writeCapture(t, pcapPath, 5)
	outDir := filepath.Join(dir, "batches")

	stats, names, err := extract(Config{PCAPFile: pcapPath, OutputDir: outDir, BatchSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, stats.ProbeRequests)
	require.Len(t, names, 3)

	src := l1capture.NewSource(filepath.Join(outDir, "ap3-*.json"))
	files, err := src.Files()
	require.NoError(t, err)
	assert.Equal(t, names, files)

	data, err := os.ReadFile(names[0])
	require.NoError(t, err)
	recs, err := l1capture.DecodeBatch(data)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "ap3", recs[0].SnifferID)
	assert.Equal(t, "da:a1:19:00:00:01", recs[0].ClaimedID)
	assert.Equal(t, -40, recs[0].RSSI)
}

func TestExtract_Errors(t *testing.T) {
	dir := t.TempDir()

	_, _, err := extract(Config{PCAPFile: filepath.Join(dir, "missing.pcap"), OutputDir: dir})
	assert.Error(t, err)

	_, _, err = extract(Config{PCAPFile: filepath.Join(dir, "x.pcap"), OutputDir: "/etc/scavenger"})
	assert.Error(t, err)
}

func TestSnifferID(t *testing.T) {
	assert.Equal(t, "ap1", snifferID(Config{PCAPFile: "/data/ap1.pcap"}))
	assert.Equal(t, "lobby", snifferID(Config{PCAPFile: "/data/ap1.pcap", SnifferID: "lobby"}))
}
