package fastdoc

// Namespace URIs with a fixed prefix in the XMI wire format.
const (
	NSXMI          = "http://www.omg.org/XMI"
	NSCAS          = "http:///uima/cas.ecore"
	NSTCAS         = "http:///uima/tcas.ecore"
	NSWikiDragon   = "http:///org/hucompute/wikidragon/core/nlp/annotation.ecore"
	NSSegmentation = "http:///de/tudarmstadt/ukp/dkpro/core/api/segmentation/type.ecore"
)

// Fixed namespace prefixes.
const (
	PrefixXMI          = "xmi"
	PrefixCAS          = "cas"
	PrefixTCAS         = "tcas"
	PrefixWikiDragon   = "wikidragon"
	PrefixSegmentation = "seg"
)

// FixedNamespace pairs a namespace URI with its reserved prefix.
type FixedNamespace struct {
	URI    string
	Prefix string
}

// FixedNamespaces lists the reserved namespaces in declaration order.
var FixedNamespaces = []FixedNamespace{
	{NSXMI, PrefixXMI},
	{NSCAS, PrefixCAS},
	{NSTCAS, PrefixTCAS},
	{NSWikiDragon, PrefixWikiDragon},
	{NSSegmentation, PrefixSegmentation},
}

// PrefixFor returns the reserved prefix of uri.
func PrefixFor(uri string) (string, bool) {
	for _, ns := range FixedNamespaces {
		if ns.URI == uri {
			return ns.Prefix, true
		}
	}
	return "", false
}

// URIFor returns the namespace URI reserved for prefix.
func URIFor(prefix string) (string, bool) {
	for _, ns := range FixedNamespaces {
		if ns.Prefix == prefix {
			return ns.URI, true
		}
	}
	return "", false
}
