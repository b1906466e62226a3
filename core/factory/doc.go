// Package factory instantiates pluggable modules, such as the metrics
// exporters, from a type name and a map of raw settings decoded on json tags.
//
//	sinks := factory.NewRegistry[metrics.Sink]()
//	_ = sinks.Register("influx", func(conf map[string]any) (metrics.Sink, error) {
//		var c struct {
//			URL   string `json:"url"`
//			RunID string `json:"run_id"`
//		}
//		if err := factory.DecodeStrict(conf, &c); err != nil {
//			return nil, err
//		}
//		return newInflux(c.URL, c.RunID), nil
//	})
//	s, err := sinks.Create(factory.ModuleConfig{Type: "influx", Conf: map[string]any{"url": "http://db"}})
package factory
