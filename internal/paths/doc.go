// Provides platform-appropriate paths for the build pipeline.
//
// All paths follow XDG conventions on Linux and platform-native conventions
// on macOS and Windows. The project name "strata" is used as the
// subdirectory under each base path.
package paths
