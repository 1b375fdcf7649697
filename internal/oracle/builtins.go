package oracle

type builtin struct {
	kind      string
	signature string
}

// builtins are the names visible in every module without an import.
var builtins = map[string]builtin{
	"abs":          {KindFunction, "abs(x, /)"},
	"all":          {KindFunction, "all(iterable, /) -> bool"},
	"any":          {KindFunction, "any(iterable, /) -> bool"},
	"ascii":        {KindFunction, "ascii(obj, /) -> str"},
	"bin":          {KindFunction, "bin(number, /) -> str"},
	"breakpoint":   {KindFunction, "breakpoint(*args, **kws) -> None"},
	"callable":     {KindFunction, "callable(obj, /) -> bool"},
	"chr":          {KindFunction, "chr(i, /) -> str"},
	"compile":      {KindFunction, ""},
	"delattr":      {KindFunction, "delattr(obj, name, /) -> None"},
	"dir":          {KindFunction, "dir(o=..., /) -> list[str]"},
	"divmod":       {KindFunction, "divmod(x, y, /)"},
	"eval":         {KindFunction, ""},
	"exec":         {KindFunction, ""},
	"format":       {KindFunction, "format(value, format_spec='', /) -> str"},
	"getattr":      {KindFunction, "getattr(o, name, default=..., /)"},
	"globals":      {KindFunction, "globals() -> dict[str, Any]"},
	"hasattr":      {KindFunction, "hasattr(obj, name, /) -> bool"},
	"hash":         {KindFunction, "hash(obj, /) -> int"},
	"help":         {KindFunction, ""},
	"hex":          {KindFunction, "hex(number, /) -> str"},
	"id":           {KindFunction, "id(obj, /) -> int"},
	"input":        {KindFunction, "input(prompt='', /) -> str"},
	"isinstance":   {KindFunction, "isinstance(obj, class_or_tuple, /) -> bool"},
	"issubclass":   {KindFunction, "issubclass(cls, class_or_tuple, /) -> bool"},
	"iter":         {KindFunction, "iter(object, sentinel=..., /)"},
	"len":          {KindFunction, "len(obj, /) -> int"},
	"locals":       {KindFunction, "locals() -> dict[str, Any]"},
	"max":          {KindFunction, "max(*args, key=None, default=...)"},
	"min":          {KindFunction, "min(*args, key=None, default=...)"},
	"next":         {KindFunction, "next(i, default=..., /)"},
	"oct":          {KindFunction, "oct(number, /) -> str"},
	"open":         {KindFunction, "open(file, mode='r', buffering=-1, encoding=None, errors=None, newline=None, closefd=True, opener=None)"},
	"ord":          {KindFunction, "ord(c, /) -> int"},
	"pow":          {KindFunction, "pow(base, exp, mod=None)"},
	"print":        {KindFunction, "print(*values, sep=' ', end='\\n', file=None, flush=False) -> None"},
	"repr":         {KindFunction, "repr(obj, /) -> str"},
	"round":        {KindFunction, "round(number, ndigits=None)"},
	"setattr":      {KindFunction, "setattr(obj, name, value, /) -> None"},
	"sorted":       {KindFunction, "sorted(iterable, /, *, key=None, reverse=False) -> list"},
	"sum":          {KindFunction, "sum(iterable, /, start=0)"},
	"vars":         {KindFunction, "vars(object=..., /) -> dict[str, Any]"},
	"__import__":   {KindFunction, ""},
	"bool":         {KindClass, ""},
	"bytearray":    {KindClass, ""},
	"bytes":        {KindClass, ""},
	"classmethod":  {KindClass, ""},
	"complex":      {KindClass, ""},
	"dict":         {KindClass, ""},
	"enumerate":    {KindClass, "enumerate(iterable, start=0)"},
	"filter":       {KindClass, "filter(function, iterable, /)"},
	"float":        {KindClass, ""},
	"frozenset":    {KindClass, ""},
	"int":          {KindClass, ""},
	"list":         {KindClass, ""},
	"map":          {KindClass, "map(func, *iterables)"},
	"memoryview":   {KindClass, ""},
	"object":       {KindClass, ""},
	"property":     {KindClass, ""},
	"range":        {KindClass, "range(start, stop=..., step=..., /)"},
	"reversed":     {KindClass, "reversed(sequence, /)"},
	"set":          {KindClass, ""},
	"slice":        {KindClass, ""},
	"staticmethod": {KindClass, ""},
	"str":          {KindClass, ""},
	"super":        {KindClass, ""},
	"tuple":        {KindClass, ""},
	"type":         {KindClass, ""},
	"zip":          {KindClass, "zip(*iterables, strict=False)"},

	"BaseException":       {KindClass, ""},
	"Exception":           {KindClass, ""},
	"ArithmeticError":     {KindClass, ""},
	"AssertionError":      {KindClass, ""},
	"AttributeError":      {KindClass, ""},
	"EOFError":            {KindClass, ""},
	"FileNotFoundError":   {KindClass, ""},
	"ImportError":         {KindClass, ""},
	"IndexError":          {KindClass, ""},
	"KeyError":            {KindClass, ""},
	"KeyboardInterrupt":   {KindClass, ""},
	"LookupError":         {KindClass, ""},
	"ModuleNotFoundError": {KindClass, ""},
	"NameError":           {KindClass, ""},
	"NotImplementedError": {KindClass, ""},
	"OSError":             {KindClass, ""},
	"PermissionError":     {KindClass, ""},
	"RuntimeError":        {KindClass, ""},
	"StopIteration":       {KindClass, ""},
	"TimeoutError":        {KindClass, ""},
	"TypeError":           {KindClass, ""},
	"UnicodeDecodeError":  {KindClass, ""},
	"ValueError":          {KindClass, ""},
	"ZeroDivisionError":   {KindClass, ""},
	"DeprecationWarning":  {KindClass, ""},
	"UserWarning":         {KindClass, ""},
	"Warning":             {KindClass, ""},

	"NotImplemented": {KindInstance, ""},
	"Ellipsis":       {KindInstance, ""},
}

// markerBases never contribute members when a class lookup falls through to
// its external bases.
var markerBases = map[string]bool{
	"builtins.object":            true,
	"typing.Generic":             true,
	"typing.Protocol":            true,
	"abc.ABC":                    true,
	"typing_extensions.Protocol": true,
}
