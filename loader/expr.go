package loader

import (
	"fmt"
	"strings"

	"github.com/sarchlab/asmsim/insts"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// assign records a link-time constant. "name = . - sym" binds the size sym
// has reached so far; anything else is evaluated as an expression.
func (l *linker) assign(a *insts.SymbolAssignment) error {
	if target, ok := a.IsSizeOf(); ok {
		sym, err := l.symbols.FindSymbol(target)
		if err != nil {
			return err
		}
		return l.symbols.AddImmediate(a.Name, sym.Size)
	}

	v, err := l.eval(a.Expr)
	if err != nil {
		return fmt.Errorf("%w %q: %v", ErrInvalidExpression, a.ExprText(), err)
	}
	return l.symbols.AddImmediate(a.Name, v)
}

// eval evaluates an integer expression over constants, symbol addresses and
// the current location. Values are bound as predeclared starlark values so
// that symbols such as ".Lfoo" need no escaping.
func (l *linker) eval(expr []insts.Token) (uint64, error) {
	pred := starlark.StringDict{}
	bind := func(v uint64) string {
		name := fmt.Sprintf("v%d", len(pred))
		pred[name] = starlark.MakeUint64(v)
		return name
	}

	var src strings.Builder
	src.WriteString("rc =")
	for i := 0; i < len(expr); i++ {
		t := expr[i]
		src.WriteByte(' ')

		switch t.Kind {
		case insts.TokenNumber:
			v, err := insts.ParseNumber(t.Text)
			if err != nil {
				return 0, err
			}
			fmt.Fprintf(&src, "%d", int64(v))
		case insts.TokenChar:
			b, err := insts.DecodeEscapes(t.Text)
			if err != nil || len(b) != 1 {
				return 0, fmt.Errorf("bad character literal '%s'", t.Text)
			}
			src.WriteString(bind(uint64(b[0])))
		case insts.TokenIdentifier:
			v, err := l.symbols.Resolve(t.Text)
			if err != nil {
				return 0, err
			}
			src.WriteString(bind(v))
		case insts.TokenDot:
			if i+1 < len(expr) && expr[i+1].Kind == insts.TokenIdentifier {
				i++
				v, err := l.symbols.Resolve("." + expr[i].Text)
				if err != nil {
					return 0, err
				}
				src.WriteString(bind(v))
				continue
			}
			src.WriteString(bind(l.symbols.Cursor()))
		case insts.TokenPlus:
			src.WriteString("+")
		case insts.TokenDash:
			src.WriteString("-")
		case insts.TokenStar:
			src.WriteString("*")
		case insts.TokenBracketOpen:
			src.WriteString("(")
		case insts.TokenBracketClose:
			src.WriteString(")")
		default:
			return 0, fmt.Errorf("unexpected %s %q", t.Kind, t.Text)
		}
	}
	src.WriteByte('\n')

	thread := &starlark.Thread{Name: "link"}
	globals, err := starlark.ExecFileOptions(&syntax.FileOptions{}, thread, "expr", src.String(), pred)
	if err != nil {
		return 0, err
	}

	rc, ok := globals["rc"].(starlark.Int)
	if !ok {
		return 0, fmt.Errorf("not an integer")
	}
	if v, ok := rc.Int64(); ok {
		return uint64(v), nil
	}
	if v, ok := rc.Uint64(); ok {
		return v, nil
	}
	return 0, fmt.Errorf("%s overflows 64 bits", rc)
}
