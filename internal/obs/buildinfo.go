package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	buildInfoOnce sync.Once

	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Worksdesk API build information.",
		},
		[]string{"version", "commit", "environment"},
	)
)

// InitBuildInfo registers build_info once and sets it to 1 for the running build.
func InitBuildInfo(version, commit, environment string) {
	buildInfoOnce.Do(func() {
		prometheus.MustRegister(buildInfo)
	})
	buildInfo.WithLabelValues(version, commit, environment).Set(1)
}
