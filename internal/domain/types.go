package domain

import "fmt"

type Kind int

const (
	KindCollection Kind = iota
	KindGroup
	KindSubgroup
	KindProject
	KindDirectory
	KindFile
)

var kindNames = map[Kind]string{
	KindCollection: "collection",
	KindGroup:      "group",
	KindSubgroup:   "subgroup",
	KindProject:    "project",
	KindDirectory:  "directory",
	KindFile:       "file",
}

var legalChildren = map[Kind][]Kind{
	KindCollection: {KindGroup},
	KindGroup:      {KindSubgroup, KindProject},
	KindSubgroup:   {KindSubgroup, KindProject},
	KindProject:    {KindDirectory, KindFile},
	KindDirectory:  {KindDirectory, KindFile},
	KindFile:       nil,
}

func (kind Kind) String() string {
	if name, ok := kindNames[kind]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(kind))
}

func (kind Kind) MarshalText() ([]byte, error) {
	name, ok := kindNames[kind]
	if !ok {
		return nil, fmt.Errorf("unknown node kind %d", int(kind))
	}
	return []byte(name), nil
}

func (kind *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*kind = parsed
	return nil
}

func ParseKind(value string) (Kind, error) {
	for kind, name := range kindNames {
		if name == value {
			return kind, nil
		}
	}
	return 0, fmt.Errorf("unknown node kind %q", value)
}

// LegalChildren returns the kinds a node of this kind may own.
func (kind Kind) LegalChildren() []Kind {
	return append([]Kind(nil), legalChildren[kind]...)
}

func (kind Kind) Allows(child Kind) bool {
	for _, legal := range legalChildren[kind] {
		if legal == child {
			return true
		}
	}
	return false
}

func (kind Kind) Expandable() bool {
	return len(legalChildren[kind]) > 0
}

type ResolutionState int

const (
	Unresolved ResolutionState = iota
	Resolving
	Resolved
	Failed
)

func (state ResolutionState) String() string {
	switch state {
	case Unresolved:
		return "unresolved"
	case Resolving:
		return "resolving"
	case Resolved:
		return "resolved"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(state))
	}
}
