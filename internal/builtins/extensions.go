package builtins

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/arijanluiken/tradescript/internal/interpreter"
)

// LoadExtensions executes every .star file in dir and registers its public
// top-level functions as ext.<name> builtins. A missing directory is not an
// error.
func (r *Registry) LoadExtensions(dir string) (int, error) {
	if dir == "" {
		return 0, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			r.logger.Debug().Str("dir", dir).Msg("Extension directory not found, skipping")
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read extension directory: %w", err)
	}

	loaded := 0
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".star" {
			continue
		}

		n, err := r.loadExtensionFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return loaded, err
		}
		loaded += n
	}

	r.logger.Info().Str("dir", dir).Int("functions", loaded).Msg("Extensions loaded")
	return loaded, nil
}

func (r *Registry) loadExtensionFile(path string) (int, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read extension %s: %w", path, err)
	}

	file := filepath.Base(path)
	thread := &starlark.Thread{
		Name: "load-" + file,
		Print: func(_ *starlark.Thread, msg string) {
			r.logger.Info().Str("extension", file).Msg(msg)
		},
	}

	globals, err := starlark.ExecFile(thread, path, src, extensionPredeclared())
	if err != nil {
		return 0, fmt.Errorf("failed to execute extension %s: %w", file, err)
	}
	globals.Freeze()

	names := make([]string, 0, len(globals))
	for name := range globals {
		names = append(names, name)
	}
	sort.Strings(names)

	count := 0
	for _, name := range names {
		fn, ok := globals[name].(*starlark.Function)
		if !ok || strings.HasPrefix(name, "_") {
			continue
		}

		params := make([]string, fn.NumParams())
		for i := range params {
			params[i], _ = fn.Param(i)
		}

		builtinName := "ext." + name
		r.register(builtinName, CategoryExtension,
			fmt.Sprintf("%s(%s)", builtinName, strings.Join(params, ", ")),
			extensionFunc(builtinName, fn))
		count++

		r.logger.Debug().Str("extension", file).Str("name", builtinName).Msg("Registered extension function")
	}

	return count, nil
}

// extensionFunc calls a frozen Starlark function on a fresh thread. The
// thread is cancelled when the execution context ends.
func extensionFunc(name string, fn *starlark.Function) interpreter.BuiltinFunc {
	return func(call *interpreter.Call, args []interpreter.Value) (interpreter.Value, error) {
		sargs := make(starlark.Tuple, len(args))
		for i, a := range args {
			v, err := toStarlark(a)
			if err != nil {
				return nil, interpreter.ArgumentError(name, i, "a plain value", a)
			}
			sargs[i] = v
		}

		thread := &starlark.Thread{
			Name:  name,
			Print: func(_ *starlark.Thread, msg string) { call.Print(msg) },
		}

		done := make(chan struct{})
		defer close(done)
		go func() {
			select {
			case <-call.Context().Done():
				thread.Cancel("execution cancelled")
			case <-done:
			}
		}()

		result, err := starlark.Call(thread, fn, sargs, nil)
		if err != nil {
			return nil, err
		}
		return fromStarlark(result)
	}
}

func extensionPredeclared() starlark.StringDict {
	unary := func(name string, f func(float64) float64) *starlark.Builtin {
		return starlark.NewBuiltin(name, func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var x starlark.Value
			if err := starlark.UnpackPositionalArgs(name, args, kwargs, 1, &x); err != nil {
				return nil, err
			}
			f64, ok := starlark.AsFloat(x)
			if !ok {
				return nil, fmt.Errorf("%s() requires a number", name)
			}
			return starlark.Float(f(f64)), nil
		})
	}

	return starlark.StringDict{
		"struct": starlark.NewBuiltin("struct", starlarkstruct.Make),
		"math": starlarkstruct.FromStringDict(starlarkstruct.Default, starlark.StringDict{
			"abs":   unary("abs", math.Abs),
			"sqrt":  unary("sqrt", math.Sqrt),
			"floor": unary("floor", math.Floor),
			"ceil":  unary("ceil", math.Ceil),
			"log":   unary("log", math.Log),
			"exp":   unary("exp", math.Exp),
			"isnan": starlark.NewBuiltin("isnan", func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
				var x starlark.Value
				if err := starlark.UnpackPositionalArgs("isnan", args, kwargs, 1, &x); err != nil {
					return nil, err
				}
				f, ok := starlark.AsFloat(x)
				return starlark.Bool(ok && math.IsNaN(f)), nil
			}),
		}),
	}
}

// toStarlark converts a script value. Series become lists ordered oldest to
// newest with None for missing bars.
func toStarlark(v interpreter.Value) (starlark.Value, error) {
	switch val := v.(type) {
	case interpreter.NullValue:
		return starlark.None, nil
	case interpreter.Number:
		return starlark.Float(val), nil
	case interpreter.String:
		return starlark.String(val), nil
	case interpreter.Boolean:
		return starlark.Bool(val), nil
	case *interpreter.Series:
		values := val.Values()
		elems := make([]starlark.Value, len(values))
		for i, f := range values {
			if math.IsNaN(f) {
				elems[i] = starlark.None
			} else {
				elems[i] = starlark.Float(f)
			}
		}
		return starlark.NewList(elems), nil
	case *interpreter.Array:
		elems := make([]starlark.Value, len(val.Elements))
		for i, e := range val.Elements {
			sv, err := toStarlark(e)
			if err != nil {
				return nil, err
			}
			elems[i] = sv
		}
		return starlark.NewList(elems), nil
	case *interpreter.Map:
		d := starlark.NewDict(val.Len())
		for _, k := range val.Keys() {
			field, _ := val.Get(k)
			sv, err := toStarlark(field)
			if err != nil {
				return nil, err
			}
			if err := d.SetKey(starlark.String(k), sv); err != nil {
				return nil, err
			}
		}
		return d, nil
	}
	return nil, fmt.Errorf("cannot pass %s to an extension", v.Kind())
}

func fromStarlark(v starlark.Value) (interpreter.Value, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return interpreter.Null, nil
	case starlark.Bool:
		return interpreter.Boolean(val), nil
	case starlark.Int, starlark.Float:
		f, _ := starlark.AsFloat(val)
		return interpreter.Number(f), nil
	case starlark.String:
		return interpreter.String(val), nil
	case *starlark.List:
		return iterableToArray(val)
	case starlark.Tuple:
		return iterableToArray(val)
	case *starlark.Dict:
		m := interpreter.NewMap()
		for _, item := range val.Items() {
			key, ok := starlark.AsString(item[0])
			if !ok {
				return nil, fmt.Errorf("extension returned a dict with non-string key %s", item[0].Type())
			}
			field, err := fromStarlark(item[1])
			if err != nil {
				return nil, err
			}
			m.Set(key, field)
		}
		return m, nil
	case *starlarkstruct.Struct:
		m := interpreter.NewMap()
		for _, name := range val.AttrNames() {
			attr, err := val.Attr(name)
			if err != nil {
				return nil, err
			}
			field, err := fromStarlark(attr)
			if err != nil {
				return nil, err
			}
			m.Set(name, field)
		}
		return m, nil
	}
	return nil, fmt.Errorf("extension returned unsupported type %s", v.Type())
}

func iterableToArray(seq starlark.Indexable) (interpreter.Value, error) {
	elems := make([]interpreter.Value, seq.Len())
	for i := range elems {
		e, err := fromStarlark(seq.Index(i))
		if err != nil {
			return nil, err
		}
		elems[i] = e
	}
	return interpreter.NewArray(elems...), nil
}
