package pickle

import (
	"strconv"

	"github.com/tensorweave/tensorweave/wire"
)

// globalName packs a resolved (module, name) pair into an Item's Data
// field as module + NUL + name, the representation Global items (and
// Obj items built by INST) use throughout this package.
func globalName(module, name string) []byte {
	return append(append([]byte(module), 0), name...)
}

func (d *Decoder) loadGlobal() error {
	moduleLine, err := d.readLine()
	if err != nil {
		return err
	}
	nameLine, err := d.readLine()
	if err != nil {
		return err
	}
	module, name := rewriteGlobalName(d.protocol, string(moduleLine), string(nameLine))
	d.push(d.alloc(Item{Type: Global, Data: globalName(module, name), BuildState: noBuildState}))
	return nil
}

func (d *Decoder) loadStackGlobal() error {
	nameIdx, err := d.pop()
	if err != nil {
		return err
	}
	moduleIdx, err := d.pop()
	if err != nil {
		return err
	}
	name := string(d.At(nameIdx).Data)
	module := string(d.At(moduleIdx).Data)
	module, name = rewriteGlobalName(d.protocol, module, name)
	d.push(d.alloc(Item{Type: Global, Data: globalName(module, name), BuildState: noBuildState}))
	return nil
}

func (d *Decoder) loadInst() error {
	args, err := d.popToMark()
	if err != nil {
		return err
	}
	moduleLine, err := d.readLine()
	if err != nil {
		return err
	}
	nameLine, err := d.readLine()
	if err != nil {
		return err
	}
	module, name := rewriteGlobalName(d.protocol, string(moduleLine), string(nameLine))
	d.push(d.alloc(Item{Type: Obj, Data: globalName(module, name), Children: args, BuildState: noBuildState}))
	return nil
}

func (d *Decoder) loadObj() error {
	items, err := d.popToMark()
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return ErrMalformed
	}
	d.push(d.alloc(Item{Type: Obj, Children: items, BuildState: noBuildState}))
	return nil
}

func (d *Decoder) loadNewobj() error {
	argsIdx, err := d.pop()
	if err != nil {
		return err
	}
	clsIdx, err := d.pop()
	if err != nil {
		return err
	}
	// As in the reference unpickler, the class argument is not checked
	// for callability here; it is left to whatever later walks the tree.
	d.push(d.alloc(Item{Type: Obj, Children: []int{clsIdx, argsIdx}, BuildState: noBuildState}))
	return nil
}

func (d *Decoder) loadNewobjEx() error {
	kwargsIdx, err := d.pop()
	if err != nil {
		return err
	}
	argsIdx, err := d.pop()
	if err != nil {
		return err
	}
	clsIdx, err := d.pop()
	if err != nil {
		return err
	}
	d.push(d.alloc(Item{Type: Obj, Children: []int{clsIdx, argsIdx, kwargsIdx}, BuildState: noBuildState}))
	return nil
}

func (d *Decoder) loadReduce() error {
	argsIdx, err := d.pop()
	if err != nil {
		return err
	}
	callableIdx, err := d.pop()
	if err != nil {
		return err
	}
	if clsIdx, ok := d.reconstructorClass(callableIdx, argsIdx); ok {
		emptyArgs := d.alloc(Item{Type: Tuple, BuildState: noBuildState})
		d.push(d.alloc(Item{Type: Obj, Children: []int{clsIdx, emptyArgs}, BuildState: noBuildState}))
		return nil
	}
	d.push(d.alloc(Item{Type: Reduce, Children: []int{callableIdx, argsIdx}, BuildState: noBuildState}))
	return nil
}

// reconstructorClass detects the one REDUCE shape pickle canonicalizes
// away: copyreg._reconstructor(cls, builtins.object, None), the classic
// 2.x-era idiom for reconstructing an instance with no __reduce__ of its
// own. When it matches, it returns the arena index of cls and true; the
// caller builds a plain obj item from it instead of a reduce item. Any
// other callable or argument shape is left alone.
func (d *Decoder) reconstructorClass(callableIdx, argsIdx int) (int, bool) {
	callable := d.At(callableIdx)
	if callable.Type != Global {
		return 0, false
	}
	module, name := callable.GlobalName()
	if module != "copyreg" || name != "_reconstructor" {
		return 0, false
	}

	args := d.At(argsIdx)
	if args.Type != Tuple || len(args.Children) != 3 {
		return 0, false
	}

	base := d.At(args.Children[1])
	if base.Type != Global {
		return 0, false
	}
	baseModule, baseName := base.GlobalName()
	if baseModule != "builtins" || baseName != "object" {
		return 0, false
	}

	if d.At(args.Children[2]).Type != None {
		return 0, false
	}

	return args.Children[0], true
}

// loadBuild handles BUILD: the state popped off the stack is attached
// to the object beneath it (which stays on the stack), representing
// __setstate__(state) or __dict__.update(state).
func (d *Decoder) loadBuild() error {
	stateIdx, err := d.pop()
	if err != nil {
		return err
	}
	objIdx, err := d.top()
	if err != nil {
		return err
	}
	d.At(objIdx).BuildState = stateIdx
	return nil
}

func (d *Decoder) loadPersid() error {
	line, err := d.readLine()
	if err != nil {
		return err
	}
	d.push(d.alloc(Item{Type: PersID, Data: line, BuildState: noBuildState}))
	return nil
}

func (d *Decoder) loadBinpersid() error {
	idIdx, err := d.pop()
	if err != nil {
		return err
	}
	d.push(d.alloc(Item{Type: PersID, Children: []int{idIdx}, BuildState: noBuildState}))
	return nil
}

// loadExt handles EXT1/EXT2/EXT4: push the object registered under a
// small integer code in Python's copyreg extension registry. Since
// this decoder has no such registry to consult, it records the numeric
// code for the caller to interpret.
func (d *Decoder) loadExt(width int) error {
	var code uint32
	switch width {
	case 1:
		v, err := wire.ReadU8(d.s)
		if err != nil {
			return err
		}
		code = uint32(v)
	case 2:
		v, err := wire.ReadU16LE(d.s)
		if err != nil {
			return err
		}
		code = uint32(v)
	default:
		v, err := wire.ReadU32LE(d.s)
		if err != nil {
			return err
		}
		code = v
	}
	d.push(d.alloc(Item{Type: Ext, Data: []byte(strconv.FormatUint(uint64(code), 10)), BuildState: noBuildState}))
	return nil
}
