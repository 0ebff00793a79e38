package models

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sceneCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "scene_count",
		Help: "The number of scenes.",
	})

	sceneCountTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scene_count_total",
		Help: "The total number of scenes.",
	})

	sceneObjectCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "scene_object_count",
		Help: "The number of objects stored in scenes.",
	})
)

func instrumentIncreaseSceneGauge() {
	sceneCount.Inc()
}

func instrumentDecreaseSceneGauge() {
	sceneCount.Dec()
}

func instrumentCountScene() {
	sceneCountTotal.Inc()
}

func instrumentObjectGauge(delta float64) {
	if delta == 0 {
		return
	}
	sceneObjectCount.Add(delta)
}
