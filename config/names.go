package config

const (
	// characters removed from section titles before they become file names
	unsafeNameChars = `\/*?:"<>|`
	badFileName     = "_bad_file_name_"
)
