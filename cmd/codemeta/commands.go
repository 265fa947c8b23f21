package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chazu/codemeta/bundle"
	"github.com/chazu/codemeta/exctable"
	"github.com/chazu/codemeta/framedesc"
	"github.com/chazu/codemeta/ident"
	"github.com/chazu/codemeta/location"
	"github.com/chazu/codemeta/platform"
	"github.com/chazu/codemeta/target"
)

type command struct {
	opts options
	cfg  *platform.Config
	out  io.Writer
}

func (c *command) dispatch(name string, args []string) error {
	switch name {
	case "sample":
		if len(args) != 1 {
			return fmt.Errorf("usage: sample <bundle>")
		}
		return c.sample(args[0])
	case "list":
		if len(args) != 1 {
			return fmt.Errorf("usage: list <bundle>")
		}
		return c.list(args[0])
	case "show":
		if len(args) != 2 {
			return fmt.Errorf("usage: show <bundle> <method>")
		}
		m, err := c.load(args[0], args[1])
		if err != nil {
			return err
		}
		return c.show(m)
	case "stop", "catch":
		if len(args) != 3 {
			return fmt.Errorf("usage: %s <bundle> <method> <offset>", name)
		}
		m, err := c.load(args[0], args[1])
		if err != nil {
			return err
		}
		offset, err := parseOffset(args[2])
		if err != nil {
			return err
		}
		if name == "stop" {
			return c.stop(m, offset)
		}
		return c.catch(m, offset)
	case "decode":
		if len(args) != 1 {
			return fmt.Errorf("usage: decode <hex>")
		}
		return c.decode(args[0])
	}
	return fmt.Errorf("unknown command %q", name)
}

// parseMethodName splits "holder.name(descriptor)". The descriptor is
// optional.
func parseMethodName(s string) (ident.Method, error) {
	var m ident.Method
	if i := strings.IndexByte(s, '('); i >= 0 {
		m.Descriptor = s[i:]
		s = s[:i]
	}
	dot := strings.LastIndexByte(s, '.')
	if dot <= 0 || dot == len(s)-1 {
		return ident.Method{}, fmt.Errorf("method %q: want holder.name", s)
	}
	m.Holder, m.Name = s[:dot], s[dot+1:]
	return m, nil
}

func parseOffset(s string) (uint32, error) {
	n, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("offset %q: %w", s, err)
	}
	return uint32(n), nil
}

func (c *command) load(path, method string) (*target.Method, error) {
	f, err := bundle.ReadFile(path)
	if err != nil {
		return nil, err
	}
	name, err := parseMethodName(method)
	if err != nil {
		return nil, err
	}
	var rec *bundle.MethodRec
	if name.Descriptor != "" {
		rec, err = f.Find(name)
	} else {
		rec, err = f.FindByName(name.Holder, name.Name)
	}
	if err != nil {
		return nil, err
	}
	return rec.Method(c.cfg.Hierarchy())
}

// ---------------------------------------------------------------------------
// Commands
// ---------------------------------------------------------------------------

func (c *command) list(path string) error {
	f, err := bundle.ReadFile(path)
	if err != nil {
		return err
	}
	for _, rec := range f.Methods {
		fmt.Fprintf(c.out, "%s  %s  %d bytes  %d stops\n",
			rec.MethodName(), rec.Platform.Name, rec.CodeLength, len(rec.Positions))
	}
	return nil
}

func (c *command) show(m *target.Method) error {
	fmt.Fprintf(c.out, "%s\n", m)
	fmt.Fprintf(c.out, "  id %s, frame %d words\n", m.ID(), m.FrameWords())
	for i := 0; i < m.NumStops(); i++ {
		pos, _ := m.StopPosition(i)
		kind, _ := m.StopKindAt(i)
		fm, err := m.FrameReferenceMapFor(i)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "  stop %d @%d %s frame-refs=%v", i, pos, kind, fm)
		if ord, ok := m.SafepointOrdinal(i); ok {
			rm, err := m.RegisterReferenceMapFor(ord)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, " register-refs=%v", rm)
		}
		fmt.Fprintln(c.out)
	}
	tbl := m.ExceptionTable()
	fmt.Fprintf(c.out, "  handlers (%s):\n", tbl.Mode())
	for i := 0; i < tbl.Len(); i++ {
		e, _ := tbl.EntryAt(i)
		end, _ := tbl.RangeEnd(i)
		catch := string(e.CatchType)
		if e.CatchType.IsCatchAll() {
			catch = "any"
		}
		fmt.Fprintf(c.out, "    [%d, %d) -> %d %s\n", e.Start, end, e.Handler, catch)
	}
	inf, err := m.Descriptors()
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "  descriptors: %d entries, %d parents, ~%d bytes inflated\n",
		inf.Len(), inf.NumParents(), inf.HeapSize())
	return nil
}

func (c *command) stop(m *target.Method, offset uint32) error {
	i, ok := m.FindStopIndex(offset)
	if !ok {
		fmt.Fprintf(c.out, "no stop at or before %d\n", offset)
		return nil
	}
	pos, _ := m.StopPosition(i)
	kind, _ := m.StopKindAt(i)
	fm, err := m.FrameReferenceMapFor(i)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "stop %d @%d %s\n  frame-refs %v\n", i, pos, kind, fm)
	if ord, ok := m.SafepointOrdinal(i); ok {
		rm, err := m.RegisterReferenceMapFor(ord)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "  register-refs %v\n", rm)
	}
	d, ok, err := m.DebugInfoAt(i)
	if err != nil {
		return err
	}
	if ok {
		printDescriptor(c.out, d)
	}
	return nil
}

func printDescriptor(w io.Writer, d framedesc.Descriptor) {
	for level := d; ; {
		fmt.Fprintf(w, "  %s @bci %d\n", level.Method(), level.BCI())
		for i := 0; i < level.NumLocals(); i++ {
			fmt.Fprintf(w, "    local %d: %s\n", i, level.Local(i))
		}
		for i := 0; i < level.NumStack(); i++ {
			fmt.Fprintf(w, "    stack %d: %s\n", i, level.StackSlot(i))
		}
		parent, ok := level.Parent()
		if !ok {
			return
		}
		level = parent
	}
}

func (c *command) catch(m *target.Method, offset uint32) error {
	addr, ok := m.ThrowAddressToCatchAddress(!c.opts.caller, offset, ident.Type(c.opts.thrown))
	if !ok {
		fmt.Fprintf(c.out, "no handler for %d\n", offset)
		return nil
	}
	fmt.Fprintf(c.out, "handler at %d\n", addr)
	return nil
}

func (c *command) decode(text string) error {
	b, err := hex.DecodeString(strings.ReplaceAll(text, " ", ""))
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	for off := 0; off < len(b); {
		l, n, err := location.Decode(b[off:])
		if err != nil {
			return fmt.Errorf("at byte %d: %w", off, err)
		}
		tag, _ := location.EncodedTag(l)
		fmt.Fprintf(c.out, "%4d  % x  %-24s %s\n", off, b[off:off+n], tag, l)
		off += n
	}
	return nil
}

// sample writes a small bundle that exercises every table.
func (c *command) sample(path string) error {
	plat := c.cfg.Platform
	run := ident.Method{Holder: "app/Main", Name: "run", Descriptor: "()V"}
	helper := ident.Method{Holder: "app/Main", Name: "helper", Descriptor: "(I)I"}

	b := target.NewBuilder(run, &plat).SetCodeLength(64).SetFrameWords(6)
	b.SetDispatch(c.cfg.DispatchMode(), c.cfg.Hierarchy())
	a := b.Arena()
	outer, err := a.Add(framedesc.Entry{
		Method: run, BCI: 4,
		Locals: []location.Location{location.LocalStackSlot(0), location.Immediate(location.IntValue(7))},
	})
	if err != nil {
		return err
	}
	inner, err := a.Add(framedesc.Entry{
		Method: helper, BCI: 2,
		Locals: []location.Location{location.IntegerRegister(1)},
		Stack:  []location.Location{location.IntegerRegister(0)},
		Parent: outer,
	})
	if err != nil {
		return err
	}
	b.AddStop(target.Stop{Offset: 8, Kind: target.DirectCall, FrameRefs: []int{0}, Frame: outer})
	b.AddStop(target.Stop{Offset: 24, Kind: target.IndirectCall, FrameRefs: []int{0, 3}, Frame: inner})
	b.AddStop(target.Stop{Offset: 40, Kind: target.Safepoint, FrameRefs: []int{3}, RegisterRefs: []int{2}, Frame: inner})
	if c.cfg.DispatchMode() == exctable.ModeSites {
		b.AddHandler(exctable.Entry{Start: 24, Handler: 56})
	} else {
		b.AddHandler(exctable.Entry{Start: 0, Handler: 0})
		b.AddHandler(exctable.Entry{Start: 20, Handler: 56})
		b.AddHandler(exctable.Entry{Start: 32, Handler: 0})
	}
	m, err := b.Build()
	if err != nil {
		return err
	}
	if err := bundle.WriteFile(path, bundle.New(m)); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "wrote %s (%s)\n", path, m)
	return nil
}
