package credstore

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// spaKeyDirectives are the two stanza names the store is allowed to touch
// in the client config and fwknop config files (spec §6: "replaces only
// the SPA encryption-key and SPA HMAC-key stanzas; all other keys/values
// and formatting are preserved"). fwknop's own config format uses these
// exact directive names.
const (
	directiveEncryptionKey = "KEY_BASE64"
	directiveHMACKey       = "HMAC_KEY_BASE64"
)

// replaceSPAKeysInFile rewrites only the two SPA key lines in path,
// leaving every other line byte-for-byte untouched. A directive missing
// from the file is appended. A missing file is created containing just the
// two directives.
func replaceSPAKeysInFile(path, encryptionKey, hmacKey string) error {
	lines, err := readLines(path)
	if err != nil {
		return err
	}

	lines, sawEnc := setDirective(lines, directiveEncryptionKey, encryptionKey)
	lines, sawHMAC := setDirective(lines, directiveHMACKey, hmacKey)
	if !sawEnc {
		lines = append(lines, fmt.Sprintf("%s %s", directiveEncryptionKey, encryptionKey))
	}
	if !sawHMAC {
		lines = append(lines, fmt.Sprintf("%s %s", directiveHMACKey, hmacKey))
	}

	return os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o600)
}

// readLines returns path's lines, or an empty slice if it doesn't exist yet.
func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024), 1024) // spec §6: config line <= 1024 chars
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}

// setDirective rewrites the first line starting with the given directive
// name, returning whether it was found. Comment lines and everything else
// are passed through unchanged.
func setDirective(lines []string, directive, value string) ([]string, bool) {
	found := false
	out := make([]string, len(lines))
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !found && strings.HasPrefix(trimmed, directive) &&
			(len(trimmed) == len(directive) || trimmed[len(directive)] == ' ' || trimmed[len(directive)] == '\t') {
			out[i] = fmt.Sprintf("%s %s", directive, value)
			found = true
			continue
		}
		out[i] = line
	}
	return out, found
}
