package scripting

import (
	"fmt"
	"math"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/interstellare/server/internal/data"
	"github.com/interstellare/server/internal/physics"
	"github.com/interstellare/server/internal/world"
)

// Engine wraps a single gopher-lua VM that builds a scenario. A script
// sees the globals AU and G and the functions add_body, metadata,
// solar_system and body_count.
// Single-goroutine access only; used once at start-up.
type Engine struct {
	vm       *lua.LState
	log      *zap.Logger
	scenario *data.Scenario
}

// NewEngine creates a Lua engine with the scenario API installed.
func NewEngine(log *zap.Logger) *Engine {
	vm := lua.NewState(lua.Options{
		SkipOpenLibs: false,
	})

	e := &Engine{vm: vm, log: log, scenario: &data.Scenario{}}

	vm.SetGlobal("AU", lua.LNumber(world.AU))
	vm.SetGlobal("G", lua.LNumber(physics.GravitationalConstant))
	vm.SetGlobal("add_body", vm.NewFunction(e.addBody))
	vm.SetGlobal("metadata", vm.NewFunction(e.setMetadata))
	vm.SetGlobal("solar_system", vm.NewFunction(e.solarSystem))
	vm.SetGlobal("body_count", vm.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LNumber(e.scenario.Len()))
		return 1
	}))
	return e
}

// Close releases the VM.
func (e *Engine) Close() { e.vm.Close() }

// RunFile executes a scenario script and returns what it built.
func (e *Engine) RunFile(path string) (*data.Scenario, error) {
	if err := e.vm.DoFile(path); err != nil {
		return nil, fmt.Errorf("run %s: %w", path, err)
	}
	if e.scenario.Name == "" {
		e.scenario.Name = path
	}
	e.log.Debug("loaded lua scenario", zap.String("file", path), zap.Int("bodies", e.scenario.Len()))
	return e.scenario, nil
}

// RunString executes scenario source.
func (e *Engine) RunString(src string) (*data.Scenario, error) {
	if err := e.vm.DoString(src); err != nil {
		return nil, fmt.Errorf("run scenario: %w", err)
	}
	return e.scenario, nil
}

// LoadScenario runs the script at path in a fresh engine.
func LoadScenario(path string, log *zap.Logger) (*data.Scenario, error) {
	e := NewEngine(log)
	defer e.Close()
	return e.RunFile(path)
}

// add_body{mass=, density=, x=, y=, z=, vx=, vy=, vz=, name=} -> index
func (e *Engine) addBody(L *lua.LState) int {
	t := L.CheckTable(1)
	mass := field(L, t, "mass", 0)
	density := field(L, t, "density", 0)
	if !(mass > 0) || !(density > 0) {
		L.ArgError(1, "mass and density must be positive")
		return 0
	}
	b := physics.NewBody(mass, density).
		WithPosition(physics.Vec3{X: field(L, t, "x", 0), Y: field(L, t, "y", 0), Z: field(L, t, "z", 0)}).
		WithVelocity(physics.Vec3{X: field(L, t, "vx", 0), Y: field(L, t, "vy", 0), Z: field(L, t, "vz", 0)})
	if !b.Pos.IsFinite() || !b.Vel.IsFinite() {
		L.ArgError(1, "position and velocity must be finite")
		return 0
	}

	name := ""
	if s, ok := t.RawGetString("name").(lua.LString); ok {
		name = string(s)
	}
	e.scenario.Bodies = append(e.scenario.Bodies, b)
	e.scenario.Names = append(e.scenario.Names, name)
	L.Push(lua.LNumber(e.scenario.Len() - 1))
	return 1
}

// metadata{interaction_constant=, time_scaling=}
func (e *Engine) setMetadata(L *lua.LState) int {
	t := L.CheckTable(1)
	def := physics.DefaultMetadata()
	if e.scenario.Metadata != nil {
		def = *e.scenario.Metadata
	}
	m := physics.Metadata{
		InteractionConstant: field(L, t, "interaction_constant", def.InteractionConstant),
		TimeScaling:         field(L, t, "time_scaling", def.TimeScaling),
	}
	if err := m.Validate(); err != nil {
		L.ArgError(1, err.Error())
		return 0
	}
	e.scenario.Metadata = &m
	return 0
}

// solar_system() appends the built-in seed.
func (e *Engine) solarSystem(L *lua.LState) int {
	seed := data.SolarSystemScenario()
	e.scenario.Bodies = append(e.scenario.Bodies, seed.Bodies...)
	e.scenario.Names = append(e.scenario.Names, seed.Names...)
	L.Push(lua.LNumber(e.scenario.Len()))
	return 1
}

// field reads a numeric table entry, def when absent.
func field(L *lua.LState, t *lua.LTable, key string, def float64) float64 {
	switch v := t.RawGetString(key).(type) {
	case lua.LNumber:
		f := float64(v)
		if math.IsNaN(f) {
			L.ArgError(1, key+" is NaN")
		}
		return f
	case *lua.LNilType:
		return def
	default:
		L.ArgError(1, fmt.Sprintf("%s: number expected, got %s", key, v.Type()))
		return def
	}
}
