package flex

import (
	"fmt"
	"strings"

	"github.com/paulmach/osm"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/wegman-software/osm2rdf-go/internal/logger"
)

// hookName is the global a script defines to rewrite element tags
const hookName = "filter_tags"

// Runtime wraps one Lua interpreter. A Runtime is not safe for concurrent
// use; each worker slot owns its own.
type Runtime struct {
	L      *lua.LState
	filter lua.LValue
	log    *zap.Logger
}

// NewRuntime creates a Lua runtime with the osm2rdf helper API registered
func NewRuntime() *Runtime {
	L := lua.NewState(lua.Options{
		SkipOpenLibs: false,
	})

	r := &Runtime{
		L:      L,
		filter: lua.LNil,
		log:    logger.Named("lua"),
	}

	r.registerAPI()
	return r
}

// Close releases Lua resources
func (r *Runtime) Close() {
	r.L.Close()
}

// registerAPI registers the osm2rdf Lua API
func (r *Runtime) registerAPI() {
	osm2rdf := r.L.NewTable()
	osm2rdf.RawSetString("version", lua.LString("1.0.0"))
	r.L.SetGlobal("osm2rdf", osm2rdf)

	RegisterTransforms(r.L)

	// Route script output through the process logger
	r.L.SetGlobal("print", r.L.NewFunction(r.luaPrint))
}

// LoadFile loads and executes a Lua script
func (r *Runtime) LoadFile(path string) error {
	if err := r.L.DoFile(path); err != nil {
		return fmt.Errorf("failed to load Lua file: %w", err)
	}
	r.filter = r.L.GetGlobal(hookName)
	return nil
}

// LoadString loads and executes Lua code from a string
func (r *Runtime) LoadString(code string) error {
	if err := r.L.DoString(code); err != nil {
		return fmt.Errorf("failed to load Lua code: %w", err)
	}
	r.filter = r.L.GetGlobal(hookName)
	return nil
}

// HasFilter reports whether the loaded script defines the tag hook
func (r *Runtime) HasFilter() bool {
	return r.filter.Type() == lua.LTFunction
}

// FilterTags calls filter_tags(kind, id, tags). When the hook returns a
// table, it replaces the tag set and changed is true; the returned tags are
// sorted by key. A nil return keeps the original tags.
func (r *Runtime) FilterTags(kind string, id int64, tags osm.Tags) (result osm.Tags, changed bool, err error) {
	if !r.HasFilter() {
		return tags, false, nil
	}

	if err := r.L.CallByParam(lua.P{
		Fn:      r.filter,
		NRet:    1,
		Protect: true,
	}, lua.LString(kind), lua.LNumber(id), r.tagsToLua(tags)); err != nil {
		return nil, false, fmt.Errorf("lua %s on %s %d: %w", hookName, kind, id, err)
	}

	ret := r.L.Get(-1)
	r.L.Pop(1)

	switch v := ret.(type) {
	case *lua.LTable:
		return luaToTags(v), true, nil
	case *lua.LNilType:
		return tags, false, nil
	default:
		return nil, false, fmt.Errorf("lua %s returned %s, expected table or nil", hookName, ret.Type())
	}
}

// tagsToLua converts tags to a key→value Lua table
func (r *Runtime) tagsToLua(tags osm.Tags) *lua.LTable {
	tbl := r.L.CreateTable(0, len(tags))
	for _, t := range tags {
		tbl.RawSetString(t.Key, lua.LString(t.Value))
	}
	return tbl
}

// luaToTags converts a Lua table back into tags, skipping non-string keys
func luaToTags(tbl *lua.LTable) osm.Tags {
	var tags osm.Tags
	tbl.ForEach(func(k, v lua.LValue) {
		key, ok := k.(lua.LString)
		if !ok || v == lua.LNil {
			return
		}
		tags = append(tags, osm.Tag{Key: string(key), Value: lua.LVAsString(v)})
	})
	tags.SortByKeyValue()
	return tags
}

// luaPrint implements the print function for Lua
func (r *Runtime) luaPrint(L *lua.LState) int {
	n := L.GetTop()
	parts := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		parts = append(parts, L.ToStringMeta(L.Get(i)).String())
	}
	r.log.Info(strings.Join(parts, "\t"))
	return 0
}
