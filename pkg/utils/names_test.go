package utils

import "testing"

func TestValidateCommandName(t *testing.T) {
	valid := []string{"ping", "antilink", "resetwarn", "stiker-hd", "x"}
	for _, name := range valid {
		if err := ValidateCommandName(name); err != nil {
			t.Errorf("ValidateCommandName(%q) = %v, want nil", name, err)
		}
	}

	invalid := []string{"", "  ", " ping", "two words", "a/b", `a\b`, "..", "tab\tname", "averyveryveryveryverylongcommandname"}
	for _, name := range invalid {
		if err := ValidateCommandName(name); err == nil {
			t.Errorf("ValidateCommandName(%q) = nil, want error", name)
		}
	}
}
