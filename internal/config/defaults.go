package config

const (
	defaultLogDir            = "~/.local/share/fmristage/logs"
	defaultLedgerPath        = "~/.local/share/fmristage/runs.db"
	defaultRuntimeBinary     = "singularity"
	defaultAssetDir          = "~/singularity-images"
	defaultDenoiseImage      = "dwidenoise_latest-2019-05-21-59c5d3873bda.img"
	defaultPrepImage         = "poldracklab_fmriprep_1.5.0rc1.sif"
	defaultLicense           = "fs_license.txt"
	defaultScanPattern       = "rest"
	defaultScanSuffix        = ".nii.gz"
	defaultOutputDirName     = "fmriprep-1.5.0"
	defaultScratchDirName    = "fmriprep-work"
	defaultDerivativesLabel  = "dwidenoise-05.21.2019_fmriprep-1.5.0"
	defaultStaleAfterHours   = 72
	defaultPreflightMinFree  = 20
	defaultLogLevel          = "info"
	envAssetDir              = "FMRISTAGE_ASSET_DIR"
	envWorkRoot              = "FMRISTAGE_WORK_ROOT"
	envRuntimeBinaryOverride = "FMRISTAGE_RUNTIME"
)

var (
	defaultOutputSpaces = []string{"MNI152NLin2009cAsym:res-2", "fsaverage5"}
	defaultExtraArgs    = []string{"--use-syn-sdc"}
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			LogDir:     defaultLogDir,
			LedgerPath: defaultLedgerPath,
		},
		Runtime: Runtime{
			Binary: defaultRuntimeBinary,
		},
		Assets: Assets{
			Dir:          defaultAssetDir,
			DenoiseImage: defaultDenoiseImage,
			PrepImage:    defaultPrepImage,
			License:      defaultLicense,
		},
		Denoise: Denoise{
			Enabled:     true,
			ScanPattern: defaultScanPattern,
			ScanSuffix:  defaultScanSuffix,
		},
		Preprocess: Preprocess{
			OutputDirName:  defaultOutputDirName,
			ScratchDirName: defaultScratchDirName,
			OutputSpaces:   append([]string(nil), defaultOutputSpaces...),
			ExtraArgs:      append([]string(nil), defaultExtraArgs...),
			CleanEnv:       true,
		},
		Derivatives: Derivatives{
			Label: defaultDerivativesLabel,
		},
		Workspace: Workspace{
			StaleAfterHours: defaultStaleAfterHours,
		},
		Ledger: Ledger{
			Enabled: true,
		},
		Preflight: Preflight{
			MinFreeGiB: defaultPreflightMinFree,
		},
		Logging: Logging{
			Level: defaultLogLevel,
		},
	}
}
