package interns

// StaticString is the compiler-assigned small integer for a method/attribute
// name the VM dispatches on frequently (`append`, `keys`, `decode`, ...). The
// compiler maps source-text method names to these at build time so attribute
// dispatch on builtin types is a small integer match rather than a string
// compare (§4.A).
type StaticString byte

const (
	SSUnknown StaticString = iota

	// list / sequence protocol
	SSAppend
	SSExtend
	SSInsert
	SSPop
	SSRemove
	SSReverse
	SSSort
	SSIndex
	SSCount

	// dict protocol
	SSKeys
	SSValues
	SSItems
	SSGet
	SSSetdefault
	SSUpdate
	SSPopitem
	SSClear
	SSFromkeys

	// set protocol
	SSAdd
	SSDiscard
	SSUnion
	SSIntersection
	SSDifference
	SSSymmetricDifference
	SSIssubset
	SSIssuperset

	// str protocol
	SSSplit
	SSRsplit
	SSSplitlines
	SSStrip
	SSLstrip
	SSRstrip
	SSFind
	SSRfind
	SSReplace
	SSLower
	SSUpper
	SSCapitalize
	SSTitle
	SSFormat
	SSEncode
	SSStartswith
	SSEndswith
	SSJoin
	SSPartition
	SSRpartition
	SSZfill
	SSLjust
	SSRjust
	SSIsdigit
	SSIsalpha
	SSIsalnum
	SSIsspace

	// bytes protocol
	SSDecode
	SSHex
	SSFromhex

	maxStaticString
)

var staticStringNames = [maxStaticString]string{
	SSUnknown:             "",
	SSAppend:              "append",
	SSExtend:              "extend",
	SSInsert:              "insert",
	SSPop:                 "pop",
	SSRemove:              "remove",
	SSReverse:             "reverse",
	SSSort:                "sort",
	SSIndex:               "index",
	SSCount:               "count",
	SSKeys:                "keys",
	SSValues:              "values",
	SSItems:               "items",
	SSGet:                 "get",
	SSSetdefault:          "setdefault",
	SSUpdate:              "update",
	SSPopitem:             "popitem",
	SSClear:               "clear",
	SSFromkeys:            "fromkeys",
	SSAdd:                 "add",
	SSDiscard:             "discard",
	SSUnion:               "union",
	SSIntersection:        "intersection",
	SSDifference:          "difference",
	SSSymmetricDifference: "symmetric_difference",
	SSIssubset:            "issubset",
	SSIssuperset:          "issuperset",
	SSSplit:               "split",
	SSRsplit:              "rsplit",
	SSSplitlines:          "splitlines",
	SSStrip:               "strip",
	SSLstrip:              "lstrip",
	SSRstrip:              "rstrip",
	SSFind:                "find",
	SSRfind:               "rfind",
	SSReplace:             "replace",
	SSLower:               "lower",
	SSUpper:               "upper",
	SSCapitalize:          "capitalize",
	SSTitle:               "title",
	SSFormat:              "format",
	SSEncode:              "encode",
	SSStartswith:          "startswith",
	SSEndswith:            "endswith",
	SSJoin:                "join",
	SSPartition:           "partition",
	SSRpartition:          "rpartition",
	SSZfill:               "zfill",
	SSLjust:               "ljust",
	SSRjust:               "rjust",
	SSIsdigit:             "isdigit",
	SSIsalpha:             "isalpha",
	SSIsalnum:             "isalnum",
	SSIsspace:             "isspace",
	SSDecode:              "decode",
	SSHex:                 "hex",
	SSFromhex:             "fromhex",
}

var staticStringByName map[string]StaticString

func init() {
	staticStringByName = make(map[string]StaticString, len(staticStringNames))
	for id, name := range staticStringNames {
		if name != "" {
			staticStringByName[name] = StaticString(id)
		}
	}
}

// String returns the method-name text for a StaticString.
func (s StaticString) String() string {
	if int(s) < len(staticStringNames) {
		return staticStringNames[s]
	}
	return "?"
}

// LookupStaticString maps a source-text method name to its compiler-assigned
// id, used by the "compiled" program constants pool. Unknown names return
// SSUnknown; the VM falls back to a normal string-keyed dispatch for those
// (dataclass public methods forwarded to the host, for instance).
func LookupStaticString(name string) StaticString {
	if id, ok := staticStringByName[name]; ok {
		return id
	}
	return SSUnknown
}
