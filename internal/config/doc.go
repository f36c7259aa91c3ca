// Package config loads the ihi server configuration.
//
// The configuration is a YAML file, by default ihi.yaml. Every field has a
// default, so an empty or missing file yields a runnable in-memory server.
//
// # Configuration File Structure
//
//	server:
//	  addr: ":8080"
//	  read_timeout: 60s
//	  write_timeout: 10s
//	  heartbeat: 30s
//	  max_sessions: 0
//	  max_queue: 256
//	  max_packet_size: 65536
//	store:
//	  driver: sqlite        # memory | sqlite | postgres | mysql | redis | s3
//	  dsn: ihi.db
//	  table: ihi_attributes
//	  bucket: ""
//	  prefix: ""
//	  region: ""
//	  endpoint: ""
//	events:
//	  nats_url: nats://127.0.0.1:4222
//	  subject_prefix: ihi.events
//	metrics:
//	  namespace: ihi
//	  path: /metrics
//	session:
//	  flush_interval: 1m
//	  flush_timeout: 5s
//	log:
//	  level: info
//	  format: text
//
// # Usage
//
//	cfg, err := config.LoadFile("ihi.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println("Listening on", cfg.Server.Addr)
package config
