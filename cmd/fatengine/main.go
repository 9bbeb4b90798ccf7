// Command fatengine is the CLI entrypoint wiring every component together
// and driving one batch end-to-end: flag.XxxVar package-level vars set in
// init(), parsed once in main, then fed into the wiring in declaration
// order.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/dj1530954213/fatengine/allocator"
	"github.com/dj1530954213/fatengine/configs"
	"github.com/dj1530954213/fatengine/events"
	"github.com/dj1530954213/fatengine/internal/benchmarkfixtures"
	"github.com/dj1530954213/fatengine/manualio"
	"github.com/dj1530954213/fatengine/model"
	"github.com/dj1530954213/fatengine/orchestrator"
	"github.com/dj1530954213/fatengine/plclink"
	"github.com/dj1530954213/fatengine/resultservice"
	"github.com/dj1530954213/fatengine/store"
	"github.com/dj1530954213/fatengine/taskmanager"
)

const (
	exitAllPassed    = 0
	exitSomeFailed   = 1
	exitConfigOrLink = 2
	exitCancelled    = 3
)

var (
	testPlcAddr  string
	targetPlcAddr string
	storeBackend string
	storeDir     string
	storeDSN     string
	station      string
	semBound     int64
	numPoints    int
	useStub      bool
	debug        bool
	runTimeout   time.Duration
)

func usage() {
	flag.PrintDefaults()
}

func init() {
	flag.StringVar(&testPlcAddr, "test-plc", "127.0.0.1:5020", "test PLC host:port")
	flag.StringVar(&targetPlcAddr, "target-plc", "127.0.0.1:5021", "target PLC host:port")
	flag.StringVar(&storeBackend, "store", configs.StoreMem, "store backend: mem or postgres")
	flag.StringVar(&storeDir, "store-dir", "fatengine-data", "data directory for the mem store's write-ahead log")
	flag.StringVar(&storeDSN, "store-dsn", "", "postgres connection string, required when -store=postgres")
	flag.StringVar(&station, "station", "DEMO", "station name for the smoke-test batch")
	flag.Int64Var(&semBound, "sem", configs.DefaultSemaphoreBound, "maximum concurrent hard-point tasks")
	flag.IntVar(&numPoints, "points", 8, "number of synthetic points to drive through one smoke-test batch")
	flag.BoolVar(&useStub, "stub", false, "use in-memory stub PLC links instead of dialing -test-plc/-target-plc")
	flag.BoolVar(&debug, "debug", false, "enable trace logging")
	flag.DurationVar(&runTimeout, "timeout", 2*time.Minute, "overall deadline for the smoke-test batch")
	flag.Usage = usage
}

func main() {
	flag.Parse()
	configs.ShowDebugInfo = debug

	os.Exit(run())
}

func run() int {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	st, err := store.Open(ctx, storeBackend, storeLocation())
	if err != nil {
		log.Printf("fatengine: opening store: %v", err)
		return exitConfigOrLink
	}
	defer st.Close()

	testLink, targetLink := buildLinks()
	result := resultservice.New(st)
	defer result.Stop()

	tm := taskmanager.New(taskmanager.Links{TestPlc: testLink, TargetPlc: targetLink}, result)
	if err := tm.SetSemaphoreBound(semBound); err != nil {
		log.Printf("fatengine: setting semaphore bound: %v", err)
		return exitConfigOrLink
	}
	manual := manualio.New(testLink, targetLink)
	bus := events.NewBus()

	pools := []*allocator.ChannelPool{
		benchmarkfixtures.ChannelPool(model.ModuleAI, numPoints),
		benchmarkfixtures.ChannelPool(model.ModuleAO, numPoints),
		benchmarkfixtures.ChannelPool(model.ModuleDI, numPoints),
		benchmarkfixtures.ChannelPool(model.ModuleDO, numPoints),
	}
	orch := orchestrator.New(st, tm, result, manual, bus, pools)

	if err := tm.EnsurePlcConnections(ctx); err != nil {
		log.Printf("fatengine: connecting PLC links: %v", err)
		return exitConfigOrLink
	}

	importTime := time.Now()
	defs := benchmarkfixtures.Definitions(station, numPoints)
	orch.Import(station, importTime, defs)

	batch, err := orch.Allocate(ctx, station, importTime)
	if err != nil {
		log.Printf("fatengine: allocating batch: %v", err)
		return exitConfigOrLink
	}
	log.Printf("fatengine: allocated batch %d (%s), %d points, %d allocation errors",
		batch.BatchID, batch.BatchName, batch.TotalPoints, len(batch.AllocationErrors))

	if err := orch.ConfirmWiring(batch.BatchID); err != nil {
		log.Printf("fatengine: confirming wiring: %v", err)
		return exitConfigOrLink
	}

	if err := orch.StartBatchAutoTest(ctx, batch.BatchID); err != nil {
		log.Printf("fatengine: running batch: %v", err)
		return exitConfigOrLink
	}

	if ctx.Err() != nil {
		log.Printf("fatengine: batch %d cancelled: %v", batch.BatchID, ctx.Err())
		return exitCancelled
	}

	details, err := orch.GetBatchDetails(ctx, batch.BatchID)
	if err != nil {
		log.Printf("fatengine: reading back batch %d: %v", batch.BatchID, err)
		return exitConfigOrLink
	}
	fmt.Printf("batch %d: %d total, %d passed, %d failed, %d skipped\n",
		details.Batch.BatchID, details.Batch.TotalPoints, details.Batch.Passed, details.Batch.Failed, details.Batch.Skipped)

	if details.Batch.Failed > 0 {
		return exitSomeFailed
	}
	return exitAllPassed
}

func storeLocation() string {
	if storeBackend == configs.StorePostgres {
		return storeDSN
	}
	return storeDir
}

func buildLinks() (plclink.PlcLink, plclink.PlcLink) {
	if useStub {
		return plclink.NewStubLink(), plclink.NewStubLink()
	}
	return plclink.NewTCPLink(testPlcAddr, configs.LinkOpTimeout), plclink.NewTCPLink(targetPlcAddr, configs.LinkOpTimeout)
}
