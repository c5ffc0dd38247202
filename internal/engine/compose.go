package engine

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"blockdoc/internal/domain"
	"blockdoc/internal/tools"
)

// recipe is everything needed to build one block record.
type recipe struct {
	ID       string
	Tool     string
	Data     domain.Data
	Tunes    map[string]domain.Data
	ParentID string
}

// composed is a built record with its live tool instance. Nothing is in the
// collection yet.
type composed struct {
	block    *domain.Block
	instance domain.Instance
	content  []string // serialized child ids, applied by linkParents
}

// compose builds a record through its tool. Unknown tools and tool
// construction failures degrade to a stub that keeps the original id, type
// and data; only context cancellation aborts.
func (e *Engine) compose(ctx context.Context, r recipe) (*composed, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.ID == "" {
		r.ID = e.newID()
	}
	if r.Tool == "" {
		r.Tool = e.tools.Default().Name()
	}
	ref := e.handle(r.ID)

	tool, ok := e.tools.Get(r.Tool)
	if !ok && r.Tool == domain.StubTool {
		tool, ok = tools.Stub{}, true
	}
	if !ok {
		e.log.Warn("unknown tool, substituting stub",
			zap.String("id", r.ID), zap.String("tool", r.Tool), zap.Error(domain.ErrUnknownTool))
		return e.composeStub(ctx, r, ref)
	}

	inst, err := tool.Create(ctx, r.Data.Clone(), ref, e.readOnly)
	if err != nil {
		if aborted(ctx, err) {
			return nil, err
		}
		e.log.Error("tool construction failed, substituting stub",
			zap.String("id", r.ID), zap.String("tool", r.Tool), zap.Error(err))
		return e.composeStub(ctx, r, ref)
	}

	data := r.Data.Clone()
	if saved, err := inst.Save(ctx); err == nil {
		data = saved
	} else if aborted(ctx, err) {
		return nil, err
	}
	if data == nil {
		data = domain.Data{}
	}

	return &composed{
		block: &domain.Block{
			ID:        r.ID,
			Tool:      tool.Name(),
			Data:      data,
			Tunes:     domain.CloneTunes(r.Tunes),
			ParentID:  r.ParentID,
			IsDefault: tool.IsDefault(),
		},
		instance: inst,
	}, nil
}

func (e *Engine) composeStub(ctx context.Context, r recipe, ref domain.BlockRef) (*composed, error) {
	stub, ok := e.tools.Get(domain.StubTool)
	if !ok {
		stub = tools.Stub{}
	}
	data := tools.StubData(domain.SerializedBlock{ID: r.ID, Type: r.Tool, Data: r.Data})
	inst, err := stub.Create(ctx, data, ref, e.readOnly)
	if err != nil {
		if aborted(ctx, err) {
			return nil, err
		}
		return nil, fmt.Errorf("stub for %q: %w: %v", r.Tool, domain.ErrToolConstruction, err)
	}
	return &composed{
		block: &domain.Block{
			ID:       r.ID,
			Tool:     domain.StubTool,
			Data:     data,
			Tunes:    domain.CloneTunes(r.Tunes),
			ParentID: r.ParentID,
		},
		instance: inst,
	}, nil
}

// composeDefault builds an empty block of the default tool.
func (e *Engine) composeDefault(ctx context.Context) (*composed, error) {
	return e.compose(ctx, recipe{Tool: e.tools.Default().Name(), Data: domain.Data{}})
}

func aborted(ctx context.Context, err error) bool {
	return ctx.Err() != nil ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// currentData returns the live payload of b, asking its instance first.
func (e *Engine) currentData(ctx context.Context, b *domain.Block) (domain.Data, error) {
	inst, ok := e.instances[b.ID]
	if !ok {
		return b.Data.Clone(), nil
	}
	data, err := inst.Save(ctx)
	if err != nil {
		if aborted(ctx, err) {
			return nil, err
		}
		e.log.Error("tool save failed, using last known data",
			zap.String("id", b.ID), zap.String("tool", b.Tool), zap.Error(err))
		return b.Data.Clone(), nil
	}
	return data, nil
}

// serialize turns a record into its saved shape. Stubs give back the type
// and data they wrap under their own id.
func (e *Engine) serialize(ctx context.Context, b *domain.Block) (domain.SerializedBlock, error) {
	data, err := e.currentData(ctx, b)
	if err != nil {
		return domain.SerializedBlock{}, err
	}
	out := domain.SerializedBlock{
		ID:      b.ID,
		Type:    b.Tool,
		Data:    data,
		Tunes:   domain.CloneTunes(b.Tunes),
		Parent:  b.ParentID,
		Content: append([]string(nil), b.ChildIDs...),
	}
	if b.Tool == domain.StubTool {
		if orig, ok := tools.StubOriginal(data); ok {
			out.Type = orig.Type
			out.Data = orig.Data
		}
	}
	if out.Data == nil {
		out.Data = domain.Data{}
	}
	return out, nil
}

// place puts a composed record into the collection and binds its instance.
func (e *Engine) place(c *composed, at int, replace bool) (*domain.Block, error) {
	_, replaced, err := e.blocks.Insert(c.block, at, replace)
	if err != nil {
		return nil, err
	}
	if replaced != nil && replaced.ID != c.block.ID {
		delete(e.instances, replaced.ID)
	}
	e.instances[c.block.ID] = c.instance
	return replaced, nil
}
