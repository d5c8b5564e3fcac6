package cli

// defaultInstallCmd templates the install command a ProcessBuilder runs
// to materialize a plugin from its InstallURL: a pip-installable
// requirement string staged into the current directory, the convention
// every example spec in this project's fixtures uses.
func defaultInstallCmd(installURL string) (string, []string) {
	return "pip", []string{"install", "--quiet", "--target", ".", installURL}
}
