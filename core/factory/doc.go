// Package factory instantiates pluggable modules (metrics sinks, run stores)
// from configuration. A module is named by a type string and configured by a
// raw map that factories decode into typed structs.
//
//	reg := factory.NewRegistry[metrics.RunRecorder]()
//	_ = reg.Register("influx", func(conf map[string]any) (metrics.RunRecorder, error) {
//	    var c struct{ URL string `json:"url"` }
//	    if err := factory.Decode(conf, &c); err != nil {
//	        return nil, err
//	    }
//	    return newInflux(c.URL), nil
//	})
//	s, err := reg.Create(factory.ModuleConfig{Type: "influx", Conf: map[string]any{"url": "http://db"}})
package factory
