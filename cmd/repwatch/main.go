// Copyright (c) 2019 Repwatch contributors, All rights reserved.
//
// This file is part of Repwatch.
//
// Repwatch is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation version 3 of the License.
//
// Repwatch is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with Repwatch. If not, see <https://www.gnu.org/licenses/>.

package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path"
	"sync"
	"time"

	log "github.com/repwatch/repwatch/internal/pkg/shared/logger"

	"github.com/repwatch/repwatch/internal/pkg/repwatch/check"
	"github.com/repwatch/repwatch/internal/pkg/repwatch/event"
	"github.com/repwatch/repwatch/internal/pkg/repwatch/exporter"
	"github.com/repwatch/repwatch/internal/pkg/repwatch/module"
	"github.com/repwatch/repwatch/internal/pkg/repwatch/server"
	"github.com/repwatch/repwatch/internal/pkg/repwatch/worker"
	"github.com/repwatch/repwatch/internal/pkg/repwatch/xreputation"
	"github.com/repwatch/repwatch/internal/pkg/shared/apm"
	"github.com/repwatch/repwatch/internal/pkg/shared/fs"

	_ "github.com/repwatch/repwatch/internal/pkg/plugin/mallist"
	_ "github.com/repwatch/repwatch/internal/pkg/plugin/malquery"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const progName = "repwatch"

var version string
var buildTime string

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(serverCmd)
	rootCmd.PersistentFlags().Bool("dev", false, "Enable development environment specific setting")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug messages for tracing and troubleshooting")
	serverCmd.Flags().StringP("address", "a", "0.0.0.0", "IP address for the HTTP server to listen on")
	serverCmd.Flags().IntP("port", "p", 8080, "TCP port for the HTTP server to listen on")
	serverCmd.Flags().IntP("maxQueue", "q", 25000, "Length of queue for discovery event processing, 0 means unlimited/unbounded")
	serverCmd.Flags().IntP("maxRuns", "r", 64, "Max. number of scan runs processed concurrently")
	serverCmd.Flags().Int("runIdleMinutes", 10, "Minutes before an idle scan run state is evicted")
	serverCmd.Flags().IntP("cacheDuration", "c", 10, "Cache expiration time in minutes for reputation query results")
	serverCmd.Flags().Int("fetchTimeout", 30, "Timeout in seconds for fetching reputation source URLs")
	serverCmd.Flags().String("useragent", progName, "User-Agent header to use when fetching reputation source URLs")
	serverCmd.Flags().Int("maxRPS", 10, "Max. requests/second against a single reputation source, 0 means unlimited")
	serverCmd.Flags().Bool("checkaffiliates", true, "Whether to check affiliate IP addresses and internet names")
	serverCmd.Flags().Bool("checkcohosts", false, "Whether to check sites co-hosted with the scan targets")
	serverCmd.Flags().Bool("checknetblocks", false, "Whether to check netblocks owned by the scan targets")
	serverCmd.Flags().Bool("checksubnets", false, "Whether to check subnets the scan targets are members of")
	serverCmd.Flags().Bool("checkPrivateIP", false, "Whether to check private IP addresses against reputation sources")
	serverCmd.Flags().Bool("apm", false, "Enable elastic APM instrumentation")
	serverCmd.Flags().String("msq", "nats://repwatch-nats:4222", "Nats address to use for recon host communication")
	serverCmd.Flags().String("msqPrefix", progName, "Prefix for message queue subject names")
	serverCmd.Flags().String("esURL", "", "Elasticsearch URL to export findings to, empty means disabled")
	serverCmd.Flags().String("esIndex", progName+"_findings", "Elasticsearch index to export findings to")
	validateCmd.Flags().StringP("filePattern", "f", "checks_*.json", "Check file pattern glob to validate")
	viper.BindPFlag("dev", rootCmd.PersistentFlags().Lookup("dev"))
	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("address", serverCmd.Flags().Lookup("address"))
	viper.BindPFlag("port", serverCmd.Flags().Lookup("port"))
	viper.BindPFlag("maxQueue", serverCmd.Flags().Lookup("maxQueue"))
	viper.BindPFlag("maxRuns", serverCmd.Flags().Lookup("maxRuns"))
	viper.BindPFlag("runIdleMinutes", serverCmd.Flags().Lookup("runIdleMinutes"))
	viper.BindPFlag("cacheDuration", serverCmd.Flags().Lookup("cacheDuration"))
	viper.BindPFlag("fetchTimeout", serverCmd.Flags().Lookup("fetchTimeout"))
	viper.BindPFlag("useragent", serverCmd.Flags().Lookup("useragent"))
	viper.BindPFlag("maxRPS", serverCmd.Flags().Lookup("maxRPS"))
	viper.BindPFlag("checkaffiliates", serverCmd.Flags().Lookup("checkaffiliates"))
	viper.BindPFlag("checkcohosts", serverCmd.Flags().Lookup("checkcohosts"))
	viper.BindPFlag("checknetblocks", serverCmd.Flags().Lookup("checknetblocks"))
	viper.BindPFlag("checksubnets", serverCmd.Flags().Lookup("checksubnets"))
	viper.BindPFlag("checkPrivateIP", serverCmd.Flags().Lookup("checkPrivateIP"))
	viper.BindPFlag("apm", serverCmd.Flags().Lookup("apm"))
	viper.BindPFlag("msq", serverCmd.Flags().Lookup("msq"))
	viper.BindPFlag("msqPrefix", serverCmd.Flags().Lookup("msqPrefix"))
	viper.BindPFlag("esURL", serverCmd.Flags().Lookup("esURL"))
	viper.BindPFlag("esIndex", serverCmd.Flags().Lookup("esIndex"))
	viper.BindPFlag("filePattern", validateCmd.Flags().Lookup("filePattern"))
}

func initConfig() {
	viper.SetEnvPrefix(progName)
	viper.AutomaticEnv()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		exit("Error returned from command", err)
	}
}

func exit(msg string, err error) {
	fmt.Println(msg+":", err)
	os.Exit(1)
}

var rootCmd = &cobra.Command{
	Use:   "repwatch",
	Short: "Malicious reputation checker for recon scans",
	Long: `
Repwatch assesses network artifacts discovered during recon scans against
configured malicious-reputation sources.

Discovery events are received from the recon host over a NATS message queue,
checked against single-query and bulk-list reputation sources, and matching
findings are published back on the queue.`,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version and build information",
	Long:  `Print the version and build information`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version, buildTime)
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate check files",
	Long:  `Test loading and parsing reputation checks from configs directory`,
	Run: func(cmd *cobra.Command, args []string) {
		log.Setup(viper.GetBool("debug"))
		pattern := viper.GetString("filePattern")
		d, err := fs.GetDir(viper.GetBool("dev"))
		if err != nil {
			exit("Cannot get current directory??", err)
		}
		confDir := path.Join(d, "configs")
		res, count, err := check.LoadFromFile(confDir, pattern)
		if err != nil {
			exit("Error occur", err)
		} else {
			fmt.Printf("found %d valid entries out of %d check(s) in configs/%s\n", len(res.Checks), count, pattern)
		}
	},
}

var serverCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the server",
	Long: `
Start repwatch in server mode.

The worker subscribes to discovery events published by the recon host on the
NATS message queue, runs them through the configured reputation checks, and
publishes findings back to the queue. The HTTP server exposes status, loaded
checks, and ad-hoc lookups.`,

	Run: func(cmd *cobra.Command, args []string) {

		d, err := fs.GetDir(viper.GetBool("dev"))
		if err != nil {
			exit("Cannot get current directory??", err)
		}

		confDir := path.Join(d, "configs")
		addr := viper.GetString("address")
		port := viper.GetInt("port")
		msq := viper.GetString("msq")
		msqPrefix := viper.GetString("msqPrefix")
		maxQueue := viper.GetInt("maxQueue")
		maxRuns := viper.GetInt("maxRuns")
		runIdleMinutes := viper.GetInt("runIdleMinutes")
		cacheDuration := viper.GetInt("cacheDuration")
		esapm := viper.GetBool("apm")
		esURL := viper.GetString("esURL")
		esIndex := viper.GetString("esIndex")

		if msq == "" {
			exit("Incorrect msq configuration", errors.New("msq address cannot be empty"))
		}

		apm.Enable(esapm)

		log.Setup(viper.GetBool("debug"))
		log.Info(log.M{Msg: "Starting " + progName + " " + version})

		err = xreputation.Init(confDir, cacheDuration, xreputation.Settings{
			FetchTimeout: viper.GetInt("fetchTimeout"),
			UserAgent:    viper.GetString("useragent"),
			MaxRPS:       viper.GetInt("maxRPS"),
			CacheMinutes: cacheDuration,
		})
		if err != nil {
			exit("Cannot initialize reputation checks from "+confDir, err)
		}
		if !xreputation.Enabled {
			exit("Cannot start worker", errors.New("no reputation check enabled in "+confDir))
		}

		var xp *exporter.Exporter
		if esURL != "" {
			xp, err = exporter.New(esURL, esIndex)
			if err != nil {
				exit("Cannot initialize findings exporter", err)
			}
		}

		onFinding := func(evt event.Event) {
			server.CountFinding(evt)
			if xp != nil {
				xp.Enqueue(evt)
			}
		}

		w, err := worker.Start(worker.Config{
			Name:           progName,
			MSQ:            msq,
			MSQPrefix:      msqPrefix,
			MaxQueue:       maxQueue,
			MaxRuns:        maxRuns,
			RunIdleTimeout: time.Duration(runIdleMinutes) * time.Minute,
			Opts: module.Options{
				CheckAffiliates: viper.GetBool("checkaffiliates"),
				CheckCohosts:    viper.GetBool("checkcohosts"),
				CheckNetblocks:  viper.GetBool("checknetblocks"),
				CheckSubnets:    viper.GetBool("checksubnets"),
				CheckPrivateIP:  viper.GetBool("checkPrivateIP"),
			},
			OnFinding: onFinding,
		})
		if err != nil {
			exit("Cannot start worker", err)
		}

		go func() {
			err := server.Start(server.Config{
				Addr:      addr,
				Port:      port,
				StatsFunc: w.Stats,
			})
			if err != nil {
				exit("Cannot start server", err)
			}
		}()

		waitInterruptSignal()
	},
}

func waitInterruptSignal() {
	var wg sync.WaitGroup
	wg.Add(1)
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt)
	go func() {
		<-ch
		wg.Done()
	}()
	wg.Wait()
}
