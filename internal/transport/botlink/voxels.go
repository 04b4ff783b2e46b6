package botlink

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"

	"fleetcore.ai/internal/protocol"
)

// decodeRLE mirrors the teacher's internal/sim/encoding.DecodeRLE: a
// base64 blob of (palette_id, run_length) uvarint pairs.
func decodeRLE(b64 string) ([]uint16, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, err
	}
	var out []uint16
	for i := 0; i < len(raw); {
		id, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("botlink: bad voxel varint at byte %d", i)
		}
		i += n
		run, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("botlink: bad voxel run at byte %d", i)
		}
		i += n
		if id > 0xFFFF {
			return nil, fmt.Errorf("botlink: palette id %d out of range", id)
		}
		for k := uint64(0); k < run; k++ {
			out = append(out, uint16(id))
		}
	}
	return out, nil
}

// voxelIndex mirrors the teacher's dy-outer/dz-middle/dx-inner scan order
// (internal/sim/world/io/obscodec.BuildDeltaOps), which DELTA ops and the
// flat RLE array both assume.
func voxelIndex(dx, dy, dz, radius int) int {
	dim := 2*radius + 1
	return ((dy+radius)*dim+(dz+radius))*dim + (dx + radius)
}

// applyDeltaOps mutates base in place to reflect a DELTA frame, the
// inverse of the teacher's obscodec.BuildDeltaOps.
func applyDeltaOps(base []uint16, ops []protocol.VoxelDeltaOp, radius int) error {
	for _, op := range ops {
		i := voxelIndex(op.D[0], op.D[1], op.D[2], radius)
		if i < 0 || i >= len(base) {
			return fmt.Errorf("botlink: delta op %+v out of bounds for radius %d", op, radius)
		}
		base[i] = op.B
	}
	return nil
}

// voxelCache decodes successive VoxelsObs frames into a flat palette-id
// cube, applying DELTA frames on top of the last full frame the way the
// server's obscodec expects a client to.
type voxelCache struct {
	radius int
	ids    []uint16
}

func (c *voxelCache) decode(v protocol.VoxelsObs) ([]uint16, error) {
	switch v.Encoding {
	case "DELTA":
		if c.ids == nil || c.radius != v.Radius {
			return nil, fmt.Errorf("botlink: DELTA frame with no cached base")
		}
		next := append([]uint16(nil), c.ids...)
		if err := applyDeltaOps(next, v.Ops, v.Radius); err != nil {
			return nil, err
		}
		c.ids = next
		return c.ids, nil
	default: // "RLE", and anything else we treat as a full frame
		ids, err := decodeRLE(v.Data)
		if err != nil {
			return nil, err
		}
		c.radius = v.Radius
		c.ids = ids
		return c.ids, nil
	}
}

// blockSightingsFrom converts a decoded palette-id cube into the
// unfiltered adapter.BlockSighting list NearbyBlocks returns, resolving
// ids through the block palette and dropping AIR and any id the palette
// never named (spec §6's Agent Adapter contract: NearbyBlocks performs a
// single bulk scan and returns every sighted block; classification into
// resources vs points of interest is the Snapshot Builder's job, so this
// only needs to name and place each non-air block).
func blockSightingsFrom(ids []uint16, radius int, palette []string) []blockSighting {
	out := make([]blockSighting, 0, len(ids)/8)
	r := radius
	i := 0
	for dy := -r; dy <= r; dy++ {
		for dz := -r; dz <= r; dz++ {
			for dx := -r; dx <= r; dx++ {
				id := ids[i]
				i++
				if int(id) <= 0 || int(id) >= len(palette) {
					continue
				}
				name := palette[id]
				if name == "" || name == "AIR" {
					continue
				}
				out = append(out, blockSighting{
					block: name,
					dx:    dx, dy: dy, dz: dz,
				})
			}
		}
	}
	return out
}

// blockSighting is the decode-stage intermediate before botlink converts
// it to an adapter.BlockSighting using the client's own position.
type blockSighting struct {
	block      string
	dx, dy, dz int
}
