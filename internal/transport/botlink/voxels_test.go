package botlink

import (
	"encoding/base64"
	"encoding/binary"
	"testing"

	"fleetcore.ai/internal/protocol"
)

func rleBlob(pairs ...uint64) string {
	var raw []byte
	buf := make([]byte, binary.MaxVarintLen64)
	for _, v := range pairs {
		n := binary.PutUvarint(buf, v)
		raw = append(raw, buf[:n]...)
	}
	return base64.StdEncoding.EncodeToString(raw)
}

func TestDecodeRLEExpandsRuns(t *testing.T) {
	// id=2 run=3, id=0 run=2
	blob := rleBlob(2, 3, 0, 2)
	ids, err := decodeRLE(blob)
	if err != nil {
		t.Fatalf("decodeRLE: %v", err)
	}
	want := []uint16{2, 2, 2, 0, 0}
	if len(ids) != len(want) {
		t.Fatalf("len = %d, want %d", len(ids), len(want))
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("ids[%d] = %d, want %d", i, ids[i], want[i])
		}
	}
}

func TestDecodeRLERejectsBadData(t *testing.T) {
	if _, err := decodeRLE("not-valid-base64!!"); err == nil {
		t.Fatalf("expected error for invalid base64")
	}
}

func TestVoxelIndexMatchesScanOrder(t *testing.T) {
	radius := 1
	dim := 3
	// dy=-1,dz=-1,dx=-1 is the first cell; dy=1,dz=1,dx=1 is the last.
	if got := voxelIndex(-1, -1, -1, radius); got != 0 {
		t.Fatalf("first index = %d, want 0", got)
	}
	if got := voxelIndex(1, 1, 1, radius); got != dim*dim*dim-1 {
		t.Fatalf("last index = %d, want %d", got, dim*dim*dim-1)
	}
}

func TestApplyDeltaOpsPatchesInPlace(t *testing.T) {
	radius := 1
	dim := 2*radius + 1
	base := make([]uint16, dim*dim*dim)
	ops := []protocol.VoxelDeltaOp{
		{D: [3]int{0, 0, 0}, B: 7},
		{D: [3]int{1, 1, 1}, B: 9},
	}
	if err := applyDeltaOps(base, ops, radius); err != nil {
		t.Fatalf("applyDeltaOps: %v", err)
	}
	if base[voxelIndex(0, 0, 0, radius)] != 7 {
		t.Fatalf("center not patched")
	}
	if base[voxelIndex(1, 1, 1, radius)] != 9 {
		t.Fatalf("corner not patched")
	}
}

func TestApplyDeltaOpsRejectsOutOfBounds(t *testing.T) {
	radius := 1
	base := make([]uint16, 27)
	ops := []protocol.VoxelDeltaOp{{D: [3]int{5, 5, 5}, B: 1}}
	if err := applyDeltaOps(base, ops, radius); err == nil {
		t.Fatalf("expected out-of-bounds error")
	}
}

func TestVoxelCacheDecodeFullThenDelta(t *testing.T) {
	radius := 1
	dim := 3
	full := make([]uint64, 0, dim*dim*dim*2)
	for i := 0; i < dim*dim*dim; i++ {
		full = append(full, 1, 1) // id=1, run=1, all cells
	}
	c := &voxelCache{}
	ids, err := c.decode(protocol.VoxelsObs{Radius: radius, Encoding: "RLE", Data: rleBlob(full...)})
	if err != nil {
		t.Fatalf("decode RLE: %v", err)
	}
	for _, id := range ids {
		if id != 1 {
			t.Fatalf("expected all cells id=1, got %d", id)
		}
	}

	delta := protocol.VoxelsObs{
		Radius:   radius,
		Encoding: "DELTA",
		Ops:      []protocol.VoxelDeltaOp{{D: [3]int{0, 0, 0}, B: 42}},
	}
	ids2, err := c.decode(delta)
	if err != nil {
		t.Fatalf("decode DELTA: %v", err)
	}
	if ids2[voxelIndex(0, 0, 0, radius)] != 42 {
		t.Fatalf("delta not applied onto cached base")
	}
	if ids2[voxelIndex(1, 0, 0, radius)] != 1 {
		t.Fatalf("unrelated cell mutated by delta")
	}
}

func TestVoxelCacheDecodeDeltaWithoutBaseFails(t *testing.T) {
	c := &voxelCache{}
	_, err := c.decode(protocol.VoxelsObs{Radius: 1, Encoding: "DELTA"})
	if err == nil {
		t.Fatalf("expected error decoding DELTA with no cached base")
	}
}

func TestBlockSightingsFromSkipsAirAndUnknown(t *testing.T) {
	radius := 0
	palette := []string{"AIR", "STONE"}
	ids := []uint16{1}
	out := blockSightingsFrom(ids, radius, palette)
	if len(out) != 1 || out[0].block != "STONE" {
		t.Fatalf("sightings = %+v, want single STONE", out)
	}

	ids2 := []uint16{0}
	out2 := blockSightingsFrom(ids2, radius, palette)
	if len(out2) != 0 {
		t.Fatalf("expected AIR to be skipped, got %+v", out2)
	}
}
