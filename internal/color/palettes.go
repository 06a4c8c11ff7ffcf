package color

import "strings"

// resolveJava handles both annotated ("_[j]", "_[i]", "_[k]") and
// unannotated Java/JVM-language stack frames, falling back to a best-effort
// match on common package prefixes.
func resolveJava(name string) BasicPalette {
	if strings.HasSuffix(name, "]") {
		if ai := strings.LastIndex(name, "_["); ai >= 0 && len(name[ai:]) == 4 {
			switch name[ai+2 : ai+3] {
			case "k":
				return Orange
			case "i":
				return Aqua
			case "j":
				return Green
			}
		}
	}

	javaPrefix := name
	if strings.HasPrefix(name, "L") {
		javaPrefix = name[1:]
	}

	switch {
	case strings.HasPrefix(javaPrefix, "java/"),
		strings.HasPrefix(javaPrefix, "org/"),
		strings.HasPrefix(javaPrefix, "com/"),
		strings.HasPrefix(javaPrefix, "io/"),
		strings.HasPrefix(javaPrefix, "sun/"):
		return Green
	case strings.Contains(name, "::"):
		return Yellow
	default:
		return Red
	}
}

func resolvePerl(name string) BasicPalette {
	switch {
	case strings.HasSuffix(name, "_[k]"):
		return Orange
	case strings.Contains(name, "Perl") || strings.Contains(name, ".pl"):
		return Green
	case strings.Contains(name, "::"):
		return Yellow
	default:
		return Red
	}
}

func resolveJs(name string) BasicPalette {
	switch {
	case strings.TrimSpace(name) == "":
		return Green
	case strings.HasSuffix(name, "_[k]"):
		return Orange
	case strings.HasSuffix(name, "_[j]"):
		if strings.Contains(name, "/") {
			return Green
		}
		return Aqua
	case strings.Contains(name, "::"):
		return Yellow
	case strings.Contains(name, ":"):
		return Aqua
	}
	if ai := strings.Index(name, "/"); ai >= 0 && strings.Contains(name[ai:], ".js") {
		return Green
	}
	return Red
}

func resolveWakeup(name string) BasicPalette {
	return Aqua
}
