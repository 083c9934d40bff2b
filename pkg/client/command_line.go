package client

import (
	"fmt"
	"os"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func AddApiConnectionCommandlineArgs(rootCmd *cobra.Command) {
	rootCmd.PersistentFlags().String("weaveioUrl", "http://localhost:8080", "url of the weaveio queue server")
	viper.BindPFlag("weaveioUrl", rootCmd.PersistentFlags().Lookup("weaveioUrl"))
}

// LoadCommandlineArgsFromConfigFile reads cfgFile if given, falling back to
// ~/.weavectl.yaml.  Environment variables override file values.
func LoadCommandlineArgsFromConfigFile(cfgFile string) error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			return fmt.Errorf("error getting user home directory: %s", err)
		}
		viper.AddConfigPath(home)
		viper.SetConfigName(".weavectl")
	}

	viper.AutomaticEnv()

	if err := viper.MergeInConfig(); err != nil {
		switch err.(type) {
		case viper.ConfigFileNotFoundError:
			// no config file is fine, flags and env carry everything needed
		case *os.PathError:
		default:
			return fmt.Errorf("error reading config file %s: %s", viper.ConfigFileUsed(), err)
		}
	}
	return nil
}

func ExtractCommandlineApiConnectionDetails() *ApiConnectionDetails {
	apiConnectionDetails := &ApiConnectionDetails{}
	viper.Unmarshal(apiConnectionDetails)
	return apiConnectionDetails.WithEnvCredentials()
}
