package flex

import (
	"regexp"
	"strings"

	lua "github.com/yuin/gopher-lua"
)

// Tag helper functions for Lua scripts

var whitespaceRegex = regexp.MustCompile(`\s+`)

// RegisterTransforms registers the helper functions in the Lua state, both
// under osm2rdf.transforms and as globals
func RegisterTransforms(L *lua.LState) {
	helpers := map[string]lua.LGFunction{
		"trim":                  luaTrim,
		"lower":                 luaLower,
		"upper":                 luaUpper,
		"clean_spaces":          luaCleanSpaces,
		"truncate":              luaTruncate,
		"get_name":              luaGetName,
		"filter_tags_by_prefix": luaFilterTagsByPrefix,
	}

	transforms := L.NewTable()
	for name, fn := range helpers {
		f := L.NewFunction(fn)
		L.SetField(transforms, name, f)
		L.SetGlobal(name, f)
	}

	osm2rdf := L.GetGlobal("osm2rdf")
	if osm2rdf == lua.LNil {
		osm2rdf = L.NewTable()
		L.SetGlobal("osm2rdf", osm2rdf)
	}
	L.SetField(osm2rdf.(*lua.LTable), "transforms", transforms)
}

// luaTrim trims whitespace from a string
func luaTrim(L *lua.LState) int {
	s := L.CheckString(1)
	L.Push(lua.LString(strings.TrimSpace(s)))
	return 1
}

// luaLower converts string to lowercase
func luaLower(L *lua.LState) int {
	s := L.CheckString(1)
	L.Push(lua.LString(strings.ToLower(s)))
	return 1
}

// luaUpper converts string to uppercase
func luaUpper(L *lua.LState) int {
	s := L.CheckString(1)
	L.Push(lua.LString(strings.ToUpper(s)))
	return 1
}

// luaCleanSpaces normalizes whitespace (collapse multiple spaces, trim)
func luaCleanSpaces(L *lua.LState) int {
	s := L.CheckString(1)
	cleaned := whitespaceRegex.ReplaceAllString(s, " ")
	cleaned = strings.TrimSpace(cleaned)
	L.Push(lua.LString(cleaned))
	return 1
}

// luaTruncate truncates string to max length
func luaTruncate(L *lua.LState) int {
	s := L.CheckString(1)
	maxLen := L.CheckInt(2)

	runes := []rune(s)
	if len(runes) <= maxLen {
		L.Push(lua.LString(s))
	} else {
		L.Push(lua.LString(string(runes[:maxLen])))
	}
	return 1
}

// nameKeys is the lookup order used by get_name
var nameKeys = []string{"name", "int_name", "name:en"}

// luaGetName returns the first non-empty name tag, or nil
func luaGetName(L *lua.LState) int {
	tags := L.CheckTable(1)
	for _, key := range nameKeys {
		if s := lua.LVAsString(L.GetField(tags, key)); s != "" {
			L.Push(lua.LString(s))
			return 1
		}
	}
	L.Push(lua.LNil)
	return 1
}

// luaFilterTagsByPrefix drops every tag whose key starts with one of the
// given prefixes
// Usage: filter_tags_by_prefix(tags, {"source", "note:"})
func luaFilterTagsByPrefix(L *lua.LState) int {
	tags := L.CheckTable(1)
	prefixTbl := L.CheckTable(2)

	var prefixes []string
	prefixTbl.ForEach(func(_, v lua.LValue) {
		if s := lua.LVAsString(v); s != "" {
			prefixes = append(prefixes, s)
		}
	})

	result := L.NewTable()
	tags.ForEach(func(k, v lua.LValue) {
		key := lua.LVAsString(k)
		for _, p := range prefixes {
			if strings.HasPrefix(key, p) {
				return
			}
		}
		L.SetField(result, key, v)
	})

	L.Push(result)
	return 1
}
