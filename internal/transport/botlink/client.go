// Package botlink is the concrete Agent Adapter (spec §6): a websocket
// client speaking the teacher's wire protocol (internal/protocol),
// grounded directly on the teacher's cmd/bot/main.go read/write loop but
// restructured behind the adapter.Agent capability interface instead of
// inlining decision logic into the read loop the way that main.go does.
//
// Task completion has no explicit wire signal in this protocol — the
// server only ACKs acceptance and periodically reports each in-flight
// task's progress in OBS.Tasks. This client infers completion the way a
// human operator reading the wire traffic would: a dispatched task
// completes successfully the first time it disappears from OBS.Tasks
// having been seen at least once, and fails only if the server ACKs it
// as rejected outright. This is an explicit resolution of an
// underspecified wire behavior, not a guess at a signal the protocol
// actually sends.
package botlink

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"fleetcore.ai/internal/adapter"
	"fleetcore.ai/internal/protocol"
)

// Client is the concrete adapter.Agent backed by one websocket
// connection to the game server.
type Client struct {
	agentName string
	logger    *log.Logger

	writeMu sync.Mutex
	conn    *websocket.Conn

	mu           sync.Mutex
	agentID      string
	blockPalette []string
	itemPalette  []string
	voxels       voxelCache
	state        adapter.EntityState
	tasks        map[string]protocol.TaskObs

	ready   chan struct{}
	readyOnce sync.Once
	done    chan struct{}
	doneOnce sync.Once

	events chan adapter.Event

	pendingMu       sync.Mutex
	pendingInstants map[string]chan error
	pendingTasks    map[string]chan error

	batchMu      sync.Mutex
	pendingBatch map[string]chan protocol.EventBatchMsg
	cursor       uint64
}

// Dial opens a websocket connection, sends HELLO, and blocks until
// WELCOME and the block palette catalog arrive (see maybeReady) or ctx
// is done.
func Dial(ctx context.Context, url, agentName string, logger *log.Logger) (*Client, error) {
	if logger == nil {
		logger = log.Default()
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("botlink: dial %s: %w", url, err)
	}

	c := &Client{
		agentName:       agentName,
		logger:          logger,
		conn:            conn,
		tasks:           make(map[string]protocol.TaskObs),
		ready:           make(chan struct{}),
		done:            make(chan struct{}),
		events:          make(chan adapter.Event, 64),
		pendingInstants: make(map[string]chan error),
		pendingTasks:    make(map[string]chan error),
		pendingBatch:    make(map[string]chan protocol.EventBatchMsg),
	}

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		AgentName:       agentName,
		Capabilities: protocol.HelloCapabilities{
			DeltaVoxels: true,
			MaxQueue:    8,
		},
	}
	if err := c.writeJSON(hello); err != nil {
		conn.Close()
		return nil, fmt.Errorf("botlink: send HELLO: %w", err)
	}

	go c.readLoop()

	select {
	case <-c.ready:
		return c, nil
	case <-c.done:
		return nil, fmt.Errorf("botlink: connection closed before WELCOME")
	case <-ctx.Done():
		c.Close()
		return nil, ctx.Err()
	}
}

func (c *Client) writeJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(v)
}

func (c *Client) newID(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, uuid.NewString())
}

// Close tears down the connection without sending any message first.
// Quit does the same; the protocol has no disconnect message.
func (c *Client) Close() error {
	c.doneOnce.Do(func() { close(c.done) })
	return c.conn.Close()
}

func (c *Client) readLoop() {
	defer func() {
		c.doneOnce.Do(func() { close(c.done) })
		c.failAllPending(fmt.Errorf("botlink: connection closed"))
		c.emitEvent(adapter.EventEnd, "read loop exited")
		close(c.events)
	}()

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeWelcome:
			c.handleWelcome(msg)
		case protocol.TypeCatalog:
			c.handleCatalog(msg)
		case protocol.TypeObs:
			c.handleObs(msg)
		case protocol.TypeAck:
			c.handleAck(msg)
		case protocol.TypeEventBatch:
			c.handleEventBatch(msg)
		}
	}
}

func (c *Client) handleWelcome(raw []byte) {
	var w protocol.WelcomeMsg
	if err := json.Unmarshal(raw, &w); err != nil {
		c.logger.Printf("botlink %s: decode WELCOME: %v", c.agentName, err)
		return
	}
	c.mu.Lock()
	c.agentID = w.AgentID
	c.mu.Unlock()
	c.emitEvent(adapter.EventSpawn, "welcome agent_id="+w.AgentID)
	c.maybeReady()
}

func (c *Client) handleCatalog(raw []byte) {
	var cat protocol.CatalogMsg
	if err := json.Unmarshal(raw, &cat); err != nil {
		c.logger.Printf("botlink %s: decode CATALOG: %v", c.agentName, err)
		return
	}
	palette, err := decodeStringPalette(cat.Data)
	if err != nil {
		c.logger.Printf("botlink %s: decode %s palette: %v", c.agentName, cat.Name, err)
		return
	}
	c.mu.Lock()
	switch cat.Name {
	case "block_palette":
		c.blockPalette = palette
	case "item_palette":
		c.itemPalette = palette
	}
	c.mu.Unlock()
	c.maybeReady()
}

func decodeStringPalette(data any) ([]string, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// maybeReady closes ready the first time both the agent id and the block
// palette (the only one NearbyBlocks needs) are known.
func (c *Client) maybeReady() {
	c.mu.Lock()
	ok := c.agentID != "" && c.blockPalette != nil
	c.mu.Unlock()
	if ok {
		c.readyOnce.Do(func() { close(c.ready) })
	}
}

func (c *Client) handleObs(raw []byte) {
	var obs protocol.ObsMsg
	if err := json.Unmarshal(raw, &obs); err != nil {
		c.logger.Printf("botlink %s: decode OBS: %v", c.agentName, err)
		return
	}

	newState := entityStateFrom(obs)

	c.mu.Lock()
	prevHealth := c.state.Health
	havePrev := c.tasks != nil
	prevTasks := c.tasks
	c.state = newState
	newTasks := make(map[string]protocol.TaskObs, len(obs.Tasks))
	for _, t := range obs.Tasks {
		newTasks[t.TaskID] = t
	}
	c.tasks = newTasks
	if _, err := c.voxels.decode(obs.Voxels); err != nil {
		c.logger.Printf("botlink %s: decode voxels: %v", c.agentName, err)
	}
	c.mu.Unlock()

	if havePrev {
		for id := range prevTasks {
			if _, stillRunning := newTasks[id]; !stillRunning {
				c.resolveTask(id, nil)
			}
		}
	}

	if obs.Self.HP < prevHealth {
		c.emitEvent(adapter.EventHurt, fmt.Sprintf("hp %d -> %d", prevHealth, obs.Self.HP))
	}
	if obs.Self.HP <= 0 && prevHealth > 0 {
		c.emitEvent(adapter.EventDeath, "hp reached 0")
	}
}

func (c *Client) handleAck(raw []byte) {
	var ack protocol.AckMsg
	if err := json.Unmarshal(raw, &ack); err != nil {
		return
	}
	if ack.Accepted {
		c.resolveInstant(ack.AckFor, nil)
		// Tasks only resolve on rejection here; success is inferred from
		// OBS.Tasks disappearance in handleObs.
		return
	}
	code := ack.Code
	if code != "" && !protocol.IsKnownCode(code) {
		code = "E_UNKNOWN:" + code
	}
	err := fmt.Errorf("botlink: %s rejected (%s): %s", ack.AckFor, code, ack.Message)
	c.resolveInstant(ack.AckFor, err)
	c.resolveTask(ack.AckFor, err)
}

func (c *Client) handleEventBatch(raw []byte) {
	var batch protocol.EventBatchMsg
	if err := json.Unmarshal(raw, &batch); err != nil {
		return
	}
	c.batchMu.Lock()
	ch, ok := c.pendingBatch[batch.ReqID]
	if ok {
		delete(c.pendingBatch, batch.ReqID)
	}
	c.batchMu.Unlock()
	if ok {
		ch <- batch
	}
}

// FetchMissedEvents requests every world event since sinceCursor (spec
// §4.10's reconnect pipeline: a fresh connection needs to know what it
// missed). Used by the Reconnector built on top of this client rather
// than by the tick loop itself, which only consumes the live Events()
// stream.
func (c *Client) FetchMissedEvents(ctx context.Context, sinceCursor uint64) ([]protocol.EventBatchItem, uint64, error) {
	reqID := c.newID("EB")
	ch := make(chan protocol.EventBatchMsg, 1)
	c.batchMu.Lock()
	c.pendingBatch[reqID] = ch
	c.batchMu.Unlock()

	req := protocol.EventBatchReqMsg{
		Type:            protocol.TypeEventBatchReq,
		ProtocolVersion: protocol.Version,
		ReqID:           reqID,
		SinceCursor:     sinceCursor,
		Limit:           256,
	}
	if err := c.writeJSON(req); err != nil {
		c.batchMu.Lock()
		delete(c.pendingBatch, reqID)
		c.batchMu.Unlock()
		return nil, sinceCursor, err
	}

	select {
	case batch := <-ch:
		c.mu.Lock()
		c.cursor = batch.NextCursor
		c.mu.Unlock()
		return batch.Events, batch.NextCursor, nil
	case <-ctx.Done():
		return nil, sinceCursor, ctx.Err()
	case <-c.done:
		return nil, sinceCursor, fmt.Errorf("botlink: connection closed")
	}
}

// Cursor returns the last event cursor this client has observed, the
// value a Reconnector should pass as sinceCursor on FetchMissedEvents
// against the next connection.
func (c *Client) Cursor() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cursor
}

func entityStateFrom(obs protocol.ObsMsg) adapter.EntityState {
	inv := make([]adapter.ItemStack, 0, len(obs.Inventory))
	for _, it := range obs.Inventory {
		inv = append(inv, adapter.ItemStack{Item: it.Item, Count: it.Count})
	}
	nearby := make([]adapter.NearbyEntity, 0, len(obs.Entities))
	for _, e := range obs.Entities {
		kind := "ENTITY"
		for _, tag := range e.Tags {
			if tag == "HOSTILE" {
				kind = "HOSTILE"
			}
		}
		if e.Type == "HOSTILE" {
			kind = "HOSTILE"
		}
		nearby = append(nearby, adapter.NearbyEntity{
			ID:       e.ID,
			Type:     kind,
			Position: adapter.Vec3{X: e.Pos[0], Y: e.Pos[1], Z: e.Pos[2]},
			Distance: math.NaN(), // recomputed by callers that know the agent's own position
		})
	}
	return adapter.EntityState{
		Position:  adapter.Vec3{X: obs.Self.Pos[0], Y: obs.Self.Pos[1], Z: obs.Self.Pos[2]},
		Dimension: obs.World.Biome,
		Health:    obs.Self.HP,
		Hunger:    obs.Self.Hunger,
		Effects:   append([]string(nil), obs.Self.Status...),
		TimeOfDay: obs.World.TimeOfDay,
		Inventory: inv,
		Nearby:    nearby,
	}
}

func (c *Client) emitEvent(kind adapter.ConnectionEvent, detail string) {
	select {
	case c.events <- adapter.Event{Kind: kind, Detail: detail, AtMs: time.Now().UnixMilli()}:
	default:
	}
}

func (c *Client) resolveInstant(id string, err error) {
	c.pendingMu.Lock()
	ch, ok := c.pendingInstants[id]
	if ok {
		delete(c.pendingInstants, id)
	}
	c.pendingMu.Unlock()
	if ok {
		ch <- err
	}
}

func (c *Client) resolveTask(id string, err error) {
	c.pendingMu.Lock()
	ch, ok := c.pendingTasks[id]
	if ok {
		delete(c.pendingTasks, id)
	}
	c.pendingMu.Unlock()
	if ok {
		ch <- err
	}
}

func (c *Client) failAllPending(err error) {
	c.pendingMu.Lock()
	instants := c.pendingInstants
	tasks := c.pendingTasks
	c.pendingInstants = make(map[string]chan error)
	c.pendingTasks = make(map[string]chan error)
	c.pendingMu.Unlock()
	for _, ch := range instants {
		ch <- err
	}
	for _, ch := range tasks {
		ch <- err
	}
}

func (c *Client) sendInstant(ctx context.Context, instant protocol.InstantReq) error {
	ch := make(chan error, 1)
	c.pendingMu.Lock()
	c.pendingInstants[instant.ID] = ch
	c.pendingMu.Unlock()

	act := protocol.ActMsg{
		Type:            protocol.TypeAct,
		ProtocolVersion: protocol.Version,
		AgentID:         c.currentAgentID(),
		Instants:        []protocol.InstantReq{instant},
	}
	if err := c.writeJSON(act); err != nil {
		c.resolveInstant(instant.ID, nil)
		return err
	}
	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return fmt.Errorf("botlink: connection closed")
	}
}

func (c *Client) sendTask(ctx context.Context, task protocol.TaskReq) error {
	ch := make(chan error, 1)
	c.pendingMu.Lock()
	c.pendingTasks[task.ID] = ch
	c.pendingMu.Unlock()

	act := protocol.ActMsg{
		Type:            protocol.TypeAct,
		ProtocolVersion: protocol.Version,
		AgentID:         c.currentAgentID(),
		Tasks:           []protocol.TaskReq{task},
	}
	if err := c.writeJSON(act); err != nil {
		c.resolveTask(task.ID, nil)
		return err
	}
	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		_ = c.writeJSON(protocol.ActMsg{
			Type: protocol.TypeAct, ProtocolVersion: protocol.Version,
			AgentID: c.currentAgentID(), Cancel: []string{task.ID},
		})
		return ctx.Err()
	case <-c.done:
		return fmt.Errorf("botlink: connection closed")
	}
}

func (c *Client) currentAgentID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.agentID
}

func toArr(v adapter.Vec3) [3]int { return [3]int{v.X, v.Y, v.Z} }

// Events implements adapter.Agent.
func (c *Client) Events() <-chan adapter.Event { return c.events }

// State implements adapter.Agent.
func (c *Client) State() adapter.EntityState {
	c.mu.Lock()
	defer c.mu.Unlock()
	state := c.state
	resolved := make([]adapter.NearbyEntity, len(state.Nearby))
	for i, e := range state.Nearby {
		dx := float64(e.Position.X - state.Position.X)
		dy := float64(e.Position.Y - state.Position.Y)
		dz := float64(e.Position.Z - state.Position.Z)
		e.Distance = math.Sqrt(dx*dx + dy*dy + dz*dz)
		resolved[i] = e
	}
	state.Nearby = resolved
	return state
}

// NearbyBlocks implements adapter.Agent by decoding the most recently
// received VoxelsObs frame rather than issuing a new wire request — the
// protocol streams voxel data on every OBS tick, it has no on-demand
// scan request.
func (c *Client) NearbyBlocks(ctx context.Context, radius int) ([]adapter.BlockSighting, error) {
	c.mu.Lock()
	ids := c.voxels.ids
	scanRadius := c.voxels.radius
	palette := c.blockPalette
	origin := c.state.Position
	c.mu.Unlock()

	if ids == nil {
		return nil, nil
	}
	sightings := blockSightingsFrom(ids, scanRadius, palette)
	out := make([]adapter.BlockSighting, 0, len(sightings))
	for _, s := range sightings {
		dist := math.Sqrt(float64(s.dx*s.dx + s.dy*s.dy + s.dz*s.dz))
		if dist > float64(radius) {
			continue
		}
		out = append(out, adapter.BlockSighting{
			Block:    s.block,
			Position: adapter.Vec3{X: origin.X + s.dx, Y: origin.Y + s.dy, Z: origin.Z + s.dz},
			Distance: dist,
		})
	}
	return out, nil
}

func (c *Client) PathfindTo(ctx context.Context, target adapter.Vec3, tolerance float64) error {
	return c.sendTask(ctx, protocol.TaskReq{ID: c.newID("K_move"), Type: "MOVE_TO", Target: toArr(target), Tolerance: tolerance})
}

func (c *Client) LookAt(ctx context.Context, target adapter.Vec3) error {
	return c.sendInstant(ctx, protocol.InstantReq{ID: c.newID("I_look"), Type: "LOOK_AT", TargetID: fmt.Sprintf("%d,%d,%d", target.X, target.Y, target.Z)})
}

func (c *Client) SetControlState(ctx context.Context, state string, on bool) error {
	value := "0"
	if on {
		value = "1"
	}
	return c.sendInstant(ctx, protocol.InstantReq{ID: c.newID("I_control"), Type: "SET_CONTROL", Key: state, Value: value})
}

func (c *Client) ClearControlStates(ctx context.Context) error {
	return c.sendInstant(ctx, protocol.InstantReq{ID: c.newID("I_control"), Type: "CLEAR_CONTROLS"})
}

func (c *Client) Dig(ctx context.Context, block adapter.Vec3) error {
	return c.sendTask(ctx, protocol.TaskReq{ID: c.newID("K_dig"), Type: "DIG_BLOCK", BlockPos: toArr(block)})
}

func (c *Client) Place(ctx context.Context, spec adapter.PlaceSpec) error {
	return c.sendTask(ctx, protocol.TaskReq{ID: c.newID("K_place"), Type: "PLACE_BLOCK", BlockPos: toArr(spec.At), ItemID: spec.Block})
}

func (c *Client) Equip(ctx context.Context, item string) error {
	return c.sendInstant(ctx, protocol.InstantReq{ID: c.newID("I_equip"), Type: "EQUIP", ItemID: item})
}

func (c *Client) OpenContainer(ctx context.Context, target adapter.Vec3) error {
	return c.sendTask(ctx, protocol.TaskReq{ID: c.newID("K_open"), Type: "OPEN_CONTAINER", BlockPos: toArr(target)})
}

func (c *Client) Craft(ctx context.Context, recipeID string, count int) error {
	return c.sendTask(ctx, protocol.TaskReq{ID: c.newID("K_craft"), Type: "CRAFT", RecipeID: recipeID, Count: count})
}

func (c *Client) Chat(ctx context.Context, channel, text string) error {
	return c.sendInstant(ctx, protocol.InstantReq{ID: c.newID("I_say"), Type: "SAY", Channel: channel, Text: text})
}

func (c *Client) Quit(ctx context.Context) error {
	return c.Close()
}
