package assert

import "fmt"

// NotNil panics when value is nil. An optional name makes the panic
// message point at the missing dependency.
func NotNil(value any, name ...string) {
	if value == nil {
		panic(fmt.Sprintf("expected %s to be not nil", label(name)))
	}
}

func NotEmptyStr(str string, name ...string) {
	if str == "" {
		panic(fmt.Sprintf("expected %s to be a non-empty string", label(name)))
	}
}

func label(name []string) string {
	if len(name) == 0 {
		return "value"
	}
	return name[0]
}
