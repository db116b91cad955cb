package pickle

// moduleName is a (module, name) pair as pickled by GLOBAL/STACK_GLOBAL/
// INST.
type moduleName struct {
	module, name string
}

// py2ModuleRenames covers whole-module reorganizations between Python 2
// and 3: a GLOBAL entry naming an old module is rewritten to the new
// module with the same attribute name, unless a more specific entry in
// py2NameRenames below also rewrites the name.
var py2ModuleRenames = map[string]string{
	"__builtin__":                 "builtins",
	"cPickle":                     "pickle",
	"copy_reg":                    "copyreg",
	"Queue":                       "queue",
	"SocketServer":                "socketserver",
	"ConfigParser":                "configparser",
	"repr":                        "reprlib",
	"FileDialog":                  "tkinter.filedialog",
	"tkFileDialog":                "tkinter.filedialog",
	"SimpleDialog":                "tkinter.simpledialog",
	"tkSimpleDialog":              "tkinter.simpledialog",
	"tkColorChooser":              "tkinter.colorchooser",
	"tkCommonDialog":              "tkinter.commondialog",
	"Dialog":                      "tkinter.dialog",
	"Tkdnd":                       "tkinter.dnd",
	"tkFont":                      "tkinter.font",
	"tkMessageBox":                "tkinter.messagebox",
	"ScrolledText":                "tkinter.scrolledtext",
	"Tkconstants":                 "tkinter.constants",
	"Tix":                         "tkinter.tix",
	"ttk":                         "tkinter.ttk",
	"Tkinter":                     "tkinter",
	"markupbase":                  "_markupbase",
	"_winreg":                     "winreg",
	"thread":                      "_thread",
	"dummy_thread":                "_dummy_thread",
	"dbhash":                      "dbm.bsd",
	"dumbdbm":                     "dbm.dumb",
	"dbm":                         "dbm.ndbm",
	"gdbm":                        "dbm.gnu",
	"xmlrpclib":                   "xmlrpc.client",
	"DocXMLRPCServer":             "xmlrpc.server",
	"SimpleXMLRPCServer":          "xmlrpc.server",
	"httplib":                     "http.client",
	"htmlentitydefs":              "html.entities",
	"HTMLParser":                  "html.parser",
	"Cookie":                      "http.cookies",
	"cookielib":                   "http.cookiejar",
	"BaseHTTPServer":              "http.server",
	"SimpleHTTPServer":            "http.server",
	"CGIHTTPServer":               "http.server",
	"test.test_support":           "test.support",
	"commands":                   "subprocess",
	"urllib2":                    "urllib.request",
	"urlparse":                   "urllib.parse",
	"robotparser":                "urllib.robotparser",
	"UserString":                 "collections",
	"UserList":                   "collections",
	"UserDict":                   "collections",
	"new":                        "types",
	"whichdb":                    "dbm",
	"_abcoll":                    "collections.abc",
	"cStringIO":                 "io",
	"StringIO":                  "io",
}

// py2NameRenames covers individual (module, name) pairs whose target
// attribute name itself changed, not just its module.
var py2NameRenames = map[moduleName]moduleName{
	{"__builtin__", "xrange"}:       {"builtins", "range"},
	{"__builtin__", "unicode"}:      {"builtins", "str"},
	{"__builtin__", "long"}:         {"builtins", "int"},
	{"__builtin__", "basestring"}:   {"builtins", "str"},
	{"__builtin__", "unichr"}:       {"builtins", "chr"},
	{"__builtin__", "reduce"}:       {"functools", "reduce"},
	{"__builtin__", "intern"}:       {"sys", "intern"},
	{"itertools", "izip"}:           {"builtins", "zip"},
	{"itertools", "imap"}:           {"builtins", "map"},
	{"itertools", "ifilter"}:        {"builtins", "filter"},
	{"itertools", "ifilterfalse"}:   {"itertools", "filterfalse"},
	{"UserDict", "IterableUserDict"}: {"collections", "UserDict"},
	{"UserDict", "UserDict"}:        {"collections", "UserDict"},
	{"UserList", "UserList"}:        {"collections", "UserList"},
	{"UserString", "UserString"}:    {"collections", "UserString"},
	{"Queue", "Queue"}:              {"queue", "Queue"},
	{"exceptions", "StandardError"}: {"builtins", "Exception"},
}

// py2ExceptionRenames renames exceptions that moved from the
// `exceptions` module into builtins with the same name.
var py2ExceptionRenames = map[string]bool{
	"ArithmeticError": true, "AssertionError": true, "AttributeError": true,
	"BaseException": true, "DeprecationWarning": true, "EOFError": true,
	"EnvironmentError": true, "Exception": true, "FloatingPointError": true,
	"IOError": true, "ImportError": true, "ImportWarning": true,
	"IndentationError": true, "IndexError": true, "KeyError": true,
	"KeyboardInterrupt": true, "LookupError": true, "MemoryError": true,
	"NameError": true, "NotImplementedError": true, "OSError": true,
	"OverflowError": true, "PendingDeprecationWarning": true,
	"ReferenceError": true, "RuntimeError": true, "RuntimeWarning": true,
	"StopIteration": true, "SyntaxError": true, "SyntaxWarning": true,
	"SystemError": true, "SystemExit": true, "TabError": true,
	"TypeError": true, "UnboundLocalError": true, "UnicodeDecodeError": true,
	"UnicodeEncodeError": true, "UnicodeError": true,
	"UnicodeTranslateError": true, "UnicodeWarning": true, "UserWarning": true,
	"ValueError": true, "Warning": true, "ZeroDivisionError": true,
}

// rewriteGlobalName applies the Python 2/3 compatibility renames to a
// (module, name) pair, but only for pickles declaring a protocol below
// 3, as those are the only ones old enough to carry pre-reorganization
// names.
func rewriteGlobalName(protocol int, module, name string) (string, string) {
	if protocol >= 3 {
		return module, name
	}

	if target, ok := py2NameRenames[moduleName{module, name}]; ok {
		return target.module, target.name
	}
	if module == "exceptions" && py2ExceptionRenames[name] {
		return "builtins", name
	}
	if newModule, ok := py2ModuleRenames[module]; ok {
		return newModule, name
	}
	return module, name
}
