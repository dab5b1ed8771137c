package charm

import "github.com/samber/lo"

var openStackReleases = []string{
	"diablo", "essex", "folsom", "grizzly", "havana", "icehouse", "juno",
	"kilo", "liberty", "mitaka", "newton", "ocata", "pike", "queens",
	"rocky", "stein", "train", "ussuri", "victoria", "wallaby", "xena",
	"yoga", "zed", "antelope", "bobcat", "caracal", "dalmatian", "epoxy",
}

var ubuntuSeries = []string{
	"lucid", "maverick", "natty", "oneiric", "precise", "quantal", "raring",
	"saucy", "trusty", "utopic", "vivid", "wily", "xenial", "yakkety",
	"zesty", "artful", "bionic", "cosmic", "disco", "eoan", "focal",
	"groovy", "hirsute", "impish", "jammy", "kinetic", "lunar", "mantic",
	"noble", "oracular", "plucky",
}

// OpenStackAtLeast reports whether release is minimum or later. Unknown
// releases compare lower than every known one.
func OpenStackAtLeast(release, minimum string) bool {
	return atLeast(openStackReleases, release, minimum)
}

// SeriesAtLeast reports whether the Ubuntu series is minimum or later.
func SeriesAtLeast(series, minimum string) bool {
	return atLeast(ubuntuSeries, series, minimum)
}

func atLeast(order []string, value, minimum string) bool {
	i := lo.IndexOf(order, value)
	return i >= 0 && i >= lo.IndexOf(order, minimum)
}
