package extract

import (
	"encoding/xml"
	"fmt"
	"os"
	"strings"
)

// ParseFireInfo pulls the fire name and date out of a bundle metadata XML.
// The supplemental-information element carries free text with one
// "Fire Name: X" and one "Date of Fire: Y" line; either may be absent, in
// which case the corresponding return value is empty.
func ParseFireInfo(xmlPath string) (name string, date string, err error) {
	f, err := os.Open(xmlPath)
	if err != nil {
		return "", "", fmt.Errorf("opening metadata: %w", err)
	}
	defer f.Close()

	decoder := xml.NewDecoder(f)
	for {
		token, err := decoder.Token()
		if err != nil {
			// io.EOF means no supplinf element anywhere in the document
			return "", "", fmt.Errorf("parsing metadata: %w", err)
		}

		start, ok := token.(xml.StartElement)
		if !ok || start.Name.Local != "supplinf" {
			continue
		}

		var text string
		if err := decoder.DecodeElement(&text, &start); err != nil {
			return "", "", fmt.Errorf("parsing metadata: %w", err)
		}
		name, date = parseSupplementalInfo(text)
		return name, date, nil
	}
}

func parseSupplementalInfo(text string) (name string, date string) {
	for _, line := range strings.Split(strings.TrimSpace(text), "\n") {
		if strings.Contains(line, "Fire Name") {
			if parts := strings.Split(line, ":"); len(parts) > 1 {
				name = strings.TrimSpace(parts[1])
			}
		} else if strings.Contains(line, "Date of Fire") {
			if parts := strings.Split(line, ":"); len(parts) > 1 {
				date = strings.TrimSpace(parts[1])
			}
		}
	}
	return name, date
}
