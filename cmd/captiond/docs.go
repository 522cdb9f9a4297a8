package main

// General API documentation for swaggo. Run `make swagger-gen` to generate docs.
//
// @title           captiond API
// @version         1.0
// @description     HTTP API for batch image captioning against a local llama-server.
//
// @contact.name   captiond maintainers
// @contact.url    https://github.com/your-org/captiond
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
