package config

import "time"

// Duration is a time.Duration expressed as its string form so it stays
// readable in YAML and JSON config files.
type Duration string

func (d Duration) Parse() (time.Duration, error) {
	return time.ParseDuration(string(d))
}

// MustParse is for defaults known to be well formed.
func (d Duration) MustParse() time.Duration {
	v, err := d.Parse()
	if err != nil {
		panic(err)
	}
	return v
}
