package sync

import (
	log "github.com/sirupsen/logrus"
)

// SummarizeSync logs how each var's value changes once the exports are
// evaluated, followed by the overall result. lookupEnv is normally
// os.LookupEnv.
func SummarizeSync(logger log.FieldLogger, report Report,
	lookupEnv func(string) (string, bool)) {

	if len(report.Results) == 0 {
		return
	}

	logger.Info("")
	logger.Info("Environment variables:")
	for _, res := range report.Succeeded() {
		logger.Infof("  %s", res.Name)
		if old, ok := lookupEnv(res.Name); ok && old != "" {
			logger.Infof("    was: %s", old)
			logger.Infof("    now: %s", res.Path)
		} else {
			logger.Infof("    set: %s", res.Path)
		}
	}
	logger.Info("")

	if failed := len(report.Failed()); failed > 0 {
		logger.Infof("%d variable(s) failed to sync.", failed)
	} else {
		logger.Info("Done. All variables synced successfully.")
	}
}

// SummarizePush logs the overall result of a push.
func SummarizePush(logger log.FieldLogger, report Report) {
	if failed := len(report.Failed()); failed > 0 {
		logger.Info("")
		logger.Infof("%d variable(s) failed to push.", failed)
	}
}
