package install

// RuleType is the closed set of relationships a mod can declare toward
// another mod. Spec.md §3.
type RuleType string

const (
	RuleRequires   RuleType = "requires"
	RuleRecommends RuleType = "recommends"
	RuleConflicts  RuleType = "conflicts"
	RuleProvides   RuleType = "provides"
	RuleBefore     RuleType = "before"
	RuleAfter      RuleType = "after"
)

// Reference identifies a target mod by any combination of the ways
// spec.md §3/§4.8 allows: an exact id, a content hash, a logical name, a
// file-glob expression, or a version-match string applied against
// whichever of those resolves a candidate set.
type Reference struct {
	ID              string `json:"id,omitempty"`
	FileMD5         string `json:"fileMD5,omitempty"`
	LogicalFileName string `json:"logicalFileName,omitempty"`
	FileExpression  string `json:"fileExpression,omitempty"`
	VersionMatch    string `json:"versionMatch,omitempty"`
}

// IsFuzzy reports whether the reference relies on anything other than an
// exact mod id — these references need to be re-resolved when the id they
// used to point at disappears (spec.md §4.8 repairRules).
func (r Reference) IsFuzzy() bool {
	return r.FileExpression != "" || r.FileMD5 != "" || r.LogicalFileName != ""
}

// ModRule is a persisted relationship declared by one mod about another.
type ModRule struct {
	Type      RuleType               `json:"type"`
	Reference Reference              `json:"reference"`
	Extra     map[string]interface{} `json:"extra,omitempty"`
}
